package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
)

// Format is the requested output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
	FormatWebP Format = "webp"
)

// ParseFormat normalises a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported image format %q (options: png, jpg, webp)", s)
}

// Ext returns the file extension used for archive entries.
func (f Format) Ext() string { return string(f) }

// EncodeImage encodes a pixel buffer to the requested format. PNG is
// lossless and ignores quality. JPEG and WebP clamp quality into [1,100]
// rather than rejecting it; range validation is a caller-facing concern.
// Encoding is deterministic: the same pixels, format and quality always
// produce byte-identical output.
func EncodeImage(img image.Image, format Format, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("PNG encode: %w", err)
		}
	case FormatJPEG:
		// JPEG has no alpha channel; composite onto white first.
		if err := imaging.Encode(&buf, flattenWhite(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("JPEG encode: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: quality, Method: 4}); err != nil {
			return nil, fmt.Errorf("WebP encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	return buf.Bytes(), nil
}

// flattenWhite composites an image onto a white background when it carries
// an alpha channel. Fully opaque images pass through untouched.
func flattenWhite(img image.Image) image.Image {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		bounds := img.Bounds()
		background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
		return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
	}
	return img
}
