// Package thumbnail holds the pure image functions behind artwork
// derivatives. Nothing here touches storage or artwork state.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/phrazzld/cadence-api/internal/domain"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ContentType of every generated derivative.
const ContentType = "image/jpeg"

const jpegQuality = 90

var (
	// ErrUnsupportedImage is returned for bytes no registered decoder accepts.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNotEligible is returned when the source is not exactly 1920x1080.
	ErrNotEligible = errors.New("image not eligible for thumbnail")
)

// Info describes an image without decoding its pixels.
type Info struct {
	Width  int
	Height int
	Format string
}

// Eligible reports whether the image can produce a youtube thumbnail.
func (i Info) Eligible() bool {
	return domain.IsThumbnailEligible(i.Width, i.Height)
}

// MIMEType returns the content type for the decoded format.
func (i Info) MIMEType() string {
	return "image/" + i.Format
}

// Probe reads the image header.
func Probe(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Generate produces the 1280x720 JPEG youtube thumbnail for src.
func Generate(src []byte) ([]byte, error) {
	info, err := Probe(src)
	if err != nil {
		return nil, err
	}
	if !info.Eligible() {
		return nil, fmt.Errorf("%w: %dx%d", ErrNotEligible, info.Width, info.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, domain.ThumbnailWidth, domain.ThumbnailHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
