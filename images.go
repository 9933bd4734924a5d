package sundaythoughts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/Really-Nice-Guy/ST-May01/blob"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
	maxUploadSize = 10 << 20 // 10MB
	coversPrefix  = "covers"
	pdfPrefix     = "pdfs"
)

// processImage decodes an image from src, resizes it to maxImageWidth when
// wider, and encodes it as JPEG.
func processImage(src io.Reader) ([]byte, image.Point, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = maxImageWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), image.Pt(w, h), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugifyFilename converts a file name without its extension to a URL-safe slug.
func slugifyFilename(name string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(name, "\\", "/")), path.Ext(name))
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(base), "-"), "-")
	if slug == "" {
		slug = "file"
	}
	return slug
}

// putUnique stores data under dir/base.ext, appending -2, -3, ... when the
// key is taken. It returns the key used.
func putUnique(ctx context.Context, b blob.Bucket, dir, base, ext string, data []byte, opts blob.PutOptions) (string, error) {
	for n := 1; n <= 100; n++ {
		name := base + ext
		if n > 1 {
			name = fmt.Sprintf("%s-%d%s", base, n, ext)
		}
		key := dir + "/" + name
		err := b.Put(ctx, key, bytes.NewReader(data), opts)
		if errors.Is(err, blob.ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return key, nil
	}
	return "", fmt.Errorf("no free name for %s%s", base, ext)
}

type uploadResponse struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// handleImageUpload resizes a cover image and stores it in the image bucket.
func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No image file provided"})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "File too large (max 10MB)"})
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, size, err := processImage(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid image: " + err.Error()})
	}
	key, err := putUnique(c.Request().Context(), a.buckets.Images, coversPrefix, slugifyFilename(file.Filename), ".jpg", data,
		blob.PutOptions{ContentType: "image/jpeg", CacheControl: "86400"})
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	return c.JSON(http.StatusOK, uploadResponse{Path: key, URL: a.ImageURL(key), Width: size.X, Height: size.Y})
}

// handlePDFUpload stores an article PDF in the PDF bucket.
func (a *App) handlePDFUpload(c echo.Context) error {
	file, err := c.FormFile("pdf")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No PDF file provided"})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "File too large (max 10MB)"})
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize))
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Not a PDF file"})
	}
	key, err := putUnique(c.Request().Context(), a.buckets.PDFs, pdfPrefix, slugifyFilename(file.Filename), ".pdf", data,
		blob.PutOptions{ContentType: "application/pdf", CacheControl: "86400"})
	if err != nil {
		return fmt.Errorf("store pdf: %w", err)
	}
	return c.JSON(http.StatusOK, uploadResponse{Path: key, URL: a.PDFURL(key)})
}
