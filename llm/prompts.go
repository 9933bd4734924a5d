package llm

import (
	"fmt"
	"time"
)

const formatSystemPrompt = `You are an assistant that formats input into a well-structured article with headings and paragraphs. Make the heading h3 and put the date under the heading; the date should directly follow the heading. Use heading tags liberally. This is for a blog/article. Use italic for dates. If a date is not available, use the current date, which is %s, in text format and in italic. No words before the date.
DO NOT CHANGE ANY OF THE CONTENT.`

const formatUserPrompt = "Format the following write-up into a well-structured article. DO NOT CHANGE ANY OF THE CONTENT:\n\n%s"

const explainSystemPrompt = `You are a helpful assistant that explains concepts in simple terms.
Explain the provided text as if you're explaining to a 5-year-old. Use simple words, clear analogies, and keep your explanation concise.`

const explainUserPrompt = "Please explain this in simple terms:\n\n\"%s\""

// FormatArticle builds the request that turns a raw writeup into a
// structured Markdown/HTML article. now supplies the fallback date.
func FormatArticle(writeup string, now time.Time) Request {
	return Request{
		System: fmt.Sprintf(formatSystemPrompt, now.Format("1/2/2006")),
		User:   fmt.Sprintf(formatUserPrompt, writeup),
	}
}

// Explain builds the request that explains a selected passage in simple terms.
func Explain(text string) Request {
	return Request{
		System: explainSystemPrompt,
		User:   fmt.Sprintf(explainUserPrompt, text),
	}
}
