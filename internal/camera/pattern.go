package camera

import (
	"context"
	"sync/atomic"

	"github.com/bft-labs/knockcam/internal/media"
)

// Pattern is a synthetic camera producing a moving gradient. It stands in
// for real hardware on development machines.
type Pattern struct {
	width  int
	height int
	frame  atomic.Uint64
}

// NewPattern creates a synthetic camera of the given size.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: width, height: height}
}

func (p *Pattern) CaptureFrame(ctx context.Context) (media.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return media.RawImage{}, err
	}
	n := int(p.frame.Add(1))
	stride := p.width * 3
	pix := make([]byte, stride*p.height)
	for y := 0; y < p.height; y++ {
		row := pix[y*stride : (y+1)*stride]
		for x := 0; x < p.width; x++ {
			row[x*3] = byte(x + n*4)
			row[x*3+1] = byte(y + n*2)
			row[x*3+2] = byte((x + y) / 2)
		}
	}
	return media.RawImage{Width: p.width, Height: p.height, Stride: stride, Pix: pix}, nil
}

func (p *Pattern) Close() error { return nil }
