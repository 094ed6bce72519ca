// Package media holds the transient image buffers passed between the camera
// and the HTTP handlers, and the JPEG encoder used for both the live feed
// and single-shot capture.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/bft-labs/knockcam/internal/domain"
)

// DefaultJPEGQuality matches the encoder default the device shipped with.
const DefaultJPEGQuality = 95

// RawImage is one uncompressed frame in packed RGB888. Stride is the number
// of bytes per row and may exceed Width*3 when the driver pads rows.
type RawImage struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Validate checks that the geometry matches the buffer.
func (r RawImage) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid geometry %dx%d", r.Width, r.Height)
	}
	if r.Stride < r.Width*3 {
		return fmt.Errorf("stride %d shorter than row of %d pixels", r.Stride, r.Width)
	}
	if need := r.Stride*(r.Height-1) + r.Width*3; len(r.Pix) < need {
		return fmt.Errorf("buffer holds %d bytes, need %d", len(r.Pix), need)
	}
	return nil
}

// RGBA converts the frame to an *image.RGBA for the standard encoders.
func (r RawImage) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		src := r.Pix[y*r.Stride : y*r.Stride+r.Width*3]
		dst := out.Pix[y*out.Stride : y*out.Stride+r.Width*4]
		for x := 0; x < r.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return out
}

// EncodeJPEG compresses a frame. Errors wrap domain.ErrEncodeFailure.
// A quality outside 1..100 falls back to DefaultJPEGQuality.
func EncodeJPEG(img RawImage, quality int) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncodeFailure, err)
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	buf.Grow(img.Width * img.Height / 4)
	if err := jpeg.Encode(&buf, img.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncodeFailure, err)
	}
	return buf.Bytes(), nil
}
