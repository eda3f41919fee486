package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"

	"rentonmap/internal/models"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMaxDimension = 1600
	JPEGQuality         = 82
	WebPQuality         = 75
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Encoded is a normalized image ready for upload.
type Encoded struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
}

// Normalizer decodes an upload, fits it inside MaxDimension and re-encodes
// it as WebP or JPEG.
type Normalizer struct {
	MaxDimension int
	WebP         bool
}

func (n Normalizer) Normalize(raw []byte) (*Encoded, error) {
	if !allowedMIME[http.DetectContentType(raw)] {
		return nil, models.NewValidationError("Invalid image type", "images")
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file", "images")
	}

	maxDim := n.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	buf := bytes.NewBuffer(nil)
	out := &Encoded{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	if n.WebP {
		if err := webp.Encode(buf, img, &webp.Options{Quality: WebPQuality}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		out.ContentType, out.Ext = "image/webp", ".webp"
	} else {
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		out.ContentType, out.Ext = "image/jpeg", ".jpg"
	}
	out.Data = buf.Bytes()
	return out, nil
}
