// Package gstcam captures frames through a GStreamer pipeline ending in an
// appsink. On a Raspberry Pi the source is libcamerasrc; v4l2src and
// videotestsrc work elsewhere.
package gstcam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/bft-labs/knockcam/internal/media"
	"github.com/bft-labs/knockcam/internal/ports"
)

// DefaultSource is the camera element used on the device.
const DefaultSource = "libcamerasrc"

const (
	pullSlice   = 100 * time.Millisecond
	pullTimeout = 2 * time.Second
)

var errNoSample = errors.New("no frame from pipeline")

// Config describes the pipeline.
type Config struct {
	Source string
	Width  int
	Height int
}

// Camera pulls RGB frames from
//
//	<source> ! videoconvert ! videoscale ! capsfilter ! appsink
//
// The appsink keeps only the newest buffer, so every capture returns a
// fresh frame. Not safe for concurrent use; wrap it in camera.Locked.
type Camera struct {
	config   Config
	pipeline *gst.Pipeline
	sink     *app.Sink
	logger   ports.Logger
}

// Open builds the pipeline and sets it to PLAYING.
func Open(cfg Config, logger ports.Logger) (*Camera, error) {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("knockcam")
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	src, err := gst.NewElement(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", cfg.Source, err)
	}
	if cfg.Source == "videotestsrc" {
		src.SetProperty("is-live", true)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsString(cfg.Width, cfg.Height)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, scale, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("link elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	logger.Info("camera pipeline playing",
		ports.String("source", cfg.Source),
		ports.Int("width", cfg.Width),
		ports.Int("height", cfg.Height),
	)
	return &Camera{config: cfg, pipeline: pipeline, sink: sink, logger: logger}, nil
}

// CaptureFrame waits for the next sample and copies it out of the
// GStreamer buffer.
func (c *Camera) CaptureFrame(ctx context.Context) (media.RawImage, error) {
	deadline := time.Now().Add(pullTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return media.RawImage{}, err
		}
		if c.sink.IsEOS() {
			return media.RawImage{}, fmt.Errorf("%s: end of stream", c.config.Source)
		}

		sample := c.sink.TryPullSample(pullSlice)
		if sample != nil {
			return c.copySample(sample)
		}
		if time.Now().After(deadline) {
			return media.RawImage{}, fmt.Errorf("%s: %w after %s", c.config.Source, errNoSample, pullTimeout)
		}
	}
}

func (c *Camera) copySample(sample *gst.Sample) (media.RawImage, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return media.RawImage{}, errNoSample
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	img := media.RawImage{
		Width:  c.config.Width,
		Height: c.config.Height,
		Stride: rowStride(c.config.Width),
		Pix:    pix,
	}
	if err := img.Validate(); err != nil {
		return media.RawImage{}, fmt.Errorf("unexpected buffer: %w", err)
	}
	return img, nil
}

// Close stops the pipeline.
func (c *Camera) Close() error {
	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop pipeline: %w", err)
	}
	c.logger.Info("camera pipeline stopped", ports.String("source", c.config.Source))
	return nil
}

func capsString(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", width, height)
}

// rowStride is the GStreamer default for packed RGB: rows are padded to a
// multiple of four bytes.
func rowStride(width int) int {
	return (width*3 + 3) &^ 3
}
