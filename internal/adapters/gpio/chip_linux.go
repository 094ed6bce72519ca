//go:build linux

package gpio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// GPIO character device uAPI v2 (include/uapi/linux/gpio.h).
const (
	getLineIoctl       = 0xC250B407
	lineGetValuesIoctl = 0xC010B40E

	lineFlagInput       = 1 << 2
	lineFlagEdgeRising  = 1 << 4
	lineFlagEdgeFalling = 1 << 5
	lineFlagBiasPullUp  = 1 << 8

	eventRisingEdge  = 1
	eventFallingEdge = 2

	maxLineOffset = 1 << 16
)

type lineAttribute struct {
	ID      uint32
	Padding uint32
	Value   uint64
}

type lineConfigAttribute struct {
	Attr lineAttribute
	Mask uint64
}

type lineConfig struct {
	Flags    uint64
	NumAttrs uint32
	Padding  [5]uint32
	Attrs    [10]lineConfigAttribute
}

type lineRequest struct {
	Offsets         [64]uint32
	Consumer        [32]byte
	Config          lineConfig
	NumLines        uint32
	EventBufferSize uint32
	Padding         [5]uint32
	Fd              int32
}

type lineValues struct {
	Bits uint64
	Mask uint64
}

type lineEvent struct {
	TimestampNs uint64
	ID          uint32
	Offset      uint32
	Seqno       uint32
	LineSeqno   uint32
	Padding     [6]uint32
}

// ChipLine is one input line requested from a GPIO chip with pull-up bias
// and edge detection on both edges. WaitForEdge blocks in poll(2) and
// never busy-polls.
type ChipLine struct {
	name   string
	offset int
	fd     int
	wakeFd int
	logger ports.Logger

	// mu is held by WaitForEdge for the whole wait so Close cannot
	// release the descriptors under a running poll.
	mu     sync.Mutex
	closed atomic.Bool

	wakeMu   sync.Mutex
	released bool
}

// OpenChipLine requests offset on /dev/<chip>.
func OpenChipLine(chip string, offset int, logger ports.Logger) (*ChipLine, error) {
	path := "/dev/" + chip
	chipFd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(chipFd)

	var req lineRequest
	req.Offsets[0] = uint32(offset)
	copy(req.Consumer[:len(req.Consumer)-1], Consumer)
	req.Config.Flags = lineFlagInput | lineFlagEdgeRising | lineFlagEdgeFalling | lineFlagBiasPullUp
	req.NumLines = 1

	if err := ioctl(chipFd, getLineIoctl, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("request line %d on %s: %w", offset, chip, err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(int(req.Fd))
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	l := &ChipLine{
		name:   fmt.Sprintf("%s:%d", chip, offset),
		offset: offset,
		fd:     int(req.Fd),
		wakeFd: wakeFd,
		logger: logger,
	}
	logger.Info("sensor line requested",
		ports.String("line", l.name),
		ports.String("bias", "pull-up"),
	)
	return l, nil
}

// Level reads the current line level.
func (l *ChipLine) Level() (domain.Level, error) {
	if l.closed.Load() {
		return domain.Low, ErrLineClosed
	}
	vals := lineValues{Mask: 1}
	if err := ioctl(l.fd, lineGetValuesIoctl, unsafe.Pointer(&vals)); err != nil {
		return domain.Low, fmt.Errorf("read %s: %w", l.name, err)
	}
	if vals.Bits&1 != 0 {
		return domain.High, nil
	}
	return domain.Low, nil
}

// WaitForEdge blocks until the kernel reports an edge, ctx is done or the
// line is closed.
func (l *ChipLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stop := context.AfterFunc(ctx, l.wake)
	defer stop()

	for {
		if l.closed.Load() {
			return domain.Edge{}, ErrLineClosed
		}
		if err := ctx.Err(); err != nil {
			return domain.Edge{}, err
		}

		fds := []unix.PollFd{
			{Fd: int32(l.fd), Events: unix.POLLIN},
			{Fd: int32(l.wakeFd), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return domain.Edge{}, fmt.Errorf("poll %s: %w", l.name, err)
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			var buf [8]byte
			_, _ = unix.Read(l.wakeFd, buf[:])
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return domain.Edge{}, fmt.Errorf("poll %s: revents %#x", l.name, fds[0].Revents)
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		var ev lineEvent
		buf := unsafe.Slice((*byte)(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
		n, err := unix.Read(l.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return domain.Edge{}, fmt.Errorf("read %s: %w", l.name, err)
		}
		if n != len(buf) {
			return domain.Edge{}, fmt.Errorf("read %s: short event of %d bytes", l.name, n)
		}

		edge := domain.Edge{At: monotonicToWall(ev.TimestampNs)}
		switch ev.ID {
		case eventRisingEdge:
			edge.Kind = domain.EdgeRising
		case eventFallingEdge:
			edge.Kind = domain.EdgeFalling
		default:
			l.logger.Debug("unknown line event", ports.Int("id", int(ev.ID)))
			continue
		}
		return edge, nil
	}
}

// Close wakes a pending WaitForEdge and releases the line. Safe to call
// more than once.
func (l *ChipLine) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.wake()

	l.mu.Lock()
	defer l.mu.Unlock()
	err := unix.Close(l.fd)

	l.wakeMu.Lock()
	l.released = true
	if cerr := unix.Close(l.wakeFd); err == nil {
		err = cerr
	}
	l.wakeMu.Unlock()

	l.logger.Info("sensor line released", ports.String("line", l.name))
	return err
}

func (l *ChipLine) wake() {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()
	if l.released {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(l.wakeFd, one[:])
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// monotonicToWall converts a CLOCK_MONOTONIC event timestamp to wall time.
func monotonicToWall(ns uint64) time.Time {
	now := time.Now()
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return now
	}
	age := time.Duration(ts.Nano() - int64(ns))
	if age < 0 {
		age = 0
	}
	return now.Add(-age)
}
