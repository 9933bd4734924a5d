// Package markdown renders article text and model output to safe HTML.
package markdown

import (
	"bytes"
	"context"
	"io"
	"regexp"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		// Formatted articles come back as a mix of Markdown and inline HTML.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	policy = newPolicy()

	reFence = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\n(.*?)\\n?```\\s*$")
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).OnElements("code", "pre", "span", "div", "p")
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Render converts src to sanitised HTML.
func Render(src string) string {
	var buf bytes.Buffer
	if err := RenderTo(&buf, src); err != nil {
		return ""
	}
	return buf.String()
}

// RenderTo writes the sanitised HTML of src to w.
func RenderTo(w io.Writer, src string) error {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Unfence(src)), &buf); err != nil {
		return err
	}
	_, err := w.Write(policy.SanitizeBytes(buf.Bytes()))
	return err
}

// Sanitize strips unsafe markup from already rendered HTML.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

// Unfence removes a code fence wrapping the whole document, which models
// tend to add around HTML answers.
func Unfence(src string) string {
	if m := reFence.FindStringSubmatch(src); m != nil {
		return m[1]
	}
	return src
}

// Component returns a templ.Component that renders src.
func Component(src string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return RenderTo(w, src)
	})
}
