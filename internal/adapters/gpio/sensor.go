// Package gpio provides the sensor lines the knock watcher reads: the Linux
// GPIO character device and a file-backed line for development machines
// without GPIO hardware.
package gpio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bft-labs/knockcam/internal/ports"
)

// DefaultChip is used when a sensor id names only an offset.
const DefaultChip = "gpiochip0"

// Consumer is the label the kernel shows for lines requested by knockcam.
const Consumer = "knockcam"

const filePrefix = "file:"

// ErrLineClosed is returned by WaitForEdge once the line has been closed.
var ErrLineClosed = errors.New("gpio: line closed")

// SensorID identifies one sensor line. Exactly one of Path or Chip is set.
type SensorID struct {
	Chip   string
	Offset int
	Path   string
}

// String formats the id in the syntax ParseSensorID accepts.
func (id SensorID) String() string {
	if id.Path != "" {
		return filePrefix + id.Path
	}
	return fmt.Sprintf("%s:%d", id.Chip, id.Offset)
}

// ParseSensorID accepts "gpiochip0:17", "/dev/gpiochip0:17", a bare "17"
// (on DefaultChip) or "file:/path/to/level".
func ParseSensorID(s string) (SensorID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SensorID{}, errors.New("empty sensor id")
	}

	if strings.HasPrefix(s, filePrefix) {
		path := strings.TrimPrefix(s, filePrefix)
		if path == "" {
			return SensorID{}, fmt.Errorf("sensor %q: missing file path", s)
		}
		return SensorID{Path: path}, nil
	}

	chip, offsetStr := DefaultChip, s
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		chip, offsetStr = strings.TrimPrefix(s[:i], "/dev/"), s[i+1:]
	}
	if chip == "" || strings.ContainsRune(chip, '/') {
		return SensorID{}, fmt.Errorf("sensor %q: invalid chip name", s)
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 || offset >= maxLineOffset {
		return SensorID{}, fmt.Errorf("sensor %q: invalid line offset %q", s, offsetStr)
	}
	return SensorID{Chip: chip, Offset: offset}, nil
}

// Open parses id and opens the matching line. Chip lines are requested
// again after a failure.
func Open(id string, logger ports.Logger) (ports.SensorLine, error) {
	sid, err := ParseSensorID(id)
	if err != nil {
		return nil, err
	}
	if sid.Path != "" {
		line, err := OpenFileLine(sid.Path, logger)
		if err != nil {
			return nil, err
		}
		return line, nil
	}
	line, err := NewReopeningLine(sid.String(), func() (ports.SensorLine, error) {
		l, err := OpenChipLine(sid.Chip, sid.Offset, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	}, logger)
	if err != nil {
		return nil, err
	}
	return line, nil
}
