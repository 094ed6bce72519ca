package gpio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// stubLine returns err from WaitForEdge if set, otherwise edge.
type stubLine struct {
	mu     sync.Mutex
	edge   domain.Edge
	err    error
	closed bool
}

func (l *stubLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	if l.err != nil {
		return domain.Edge{}, l.err
	}
	return l.edge, nil
}

func (l *stubLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *stubLine) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// lineSequence hands out lines in order; a nil entry fails the open.
type lineSequence struct {
	lines []*stubLine
	opens int
}

func (s *lineSequence) open() (ports.SensorLine, error) {
	i := s.opens
	s.opens++
	if i >= len(s.lines) || s.lines[i] == nil {
		return nil, errors.New("line busy")
	}
	return s.lines[i], nil
}

func TestReopeningLine_ReopensAfterFailure(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	hup := errors.New("poll gpiochip0:17: revents 0x10")
	broken := &stubLine{err: hup}
	healthy := &stubLine{edge: domain.Edge{Kind: domain.EdgeFalling, At: at}}
	seq := &lineSequence{lines: []*stubLine{broken, nil, healthy}}

	line, err := NewReopeningLine("gpiochip0:17", seq.open, nopLogger{})
	if err != nil {
		t.Fatalf("NewReopeningLine() error: %v", err)
	}

	if _, err := line.WaitForEdge(context.Background()); !errors.Is(err, hup) {
		t.Fatalf("first WaitForEdge() error = %v, want %v", err, hup)
	}
	if !broken.Closed() {
		t.Error("failed line was not closed")
	}

	// the second request fails, the third succeeds
	if _, err := line.WaitForEdge(context.Background()); err == nil {
		t.Fatal("WaitForEdge() with a busy line succeeded")
	}
	edge, err := line.WaitForEdge(context.Background())
	if err != nil {
		t.Fatalf("WaitForEdge() after reopen error: %v", err)
	}
	if edge.Kind != domain.EdgeFalling || !edge.At.Equal(at) {
		t.Errorf("edge = %+v, want falling at %v", edge, at)
	}
	if seq.opens != 3 {
		t.Errorf("opens = %d, want 3", seq.opens)
	}
}

func TestReopeningLine_CancelKeepsLine(t *testing.T) {
	first := &stubLine{err: context.Canceled}
	seq := &lineSequence{lines: []*stubLine{first}}
	line, err := NewReopeningLine("gpiochip0:17", seq.open, nopLogger{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := line.WaitForEdge(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitForEdge() error = %v, want context.Canceled", err)
	}
	if first.Closed() || seq.opens != 1 {
		t.Errorf("cancellation discarded the line (closed=%v opens=%d)", first.Closed(), seq.opens)
	}
}

func TestReopeningLine_Close(t *testing.T) {
	first := &stubLine{}
	seq := &lineSequence{lines: []*stubLine{first}}
	line, err := NewReopeningLine("gpiochip0:17", seq.open, nopLogger{})
	if err != nil {
		t.Fatal(err)
	}

	if err := line.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := line.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if !first.Closed() {
		t.Error("underlying line not closed")
	}
	if _, err := line.WaitForEdge(context.Background()); !errors.Is(err, ErrLineClosed) {
		t.Errorf("WaitForEdge() after Close error = %v, want ErrLineClosed", err)
	}
	if seq.opens != 1 {
		t.Errorf("opens = %d, want 1", seq.opens)
	}
}

func TestNewReopeningLine_OpenError(t *testing.T) {
	seq := &lineSequence{}
	if _, err := NewReopeningLine("gpiochip9:1", seq.open, nopLogger{}); err == nil {
		t.Error("NewReopeningLine() with failing open succeeded")
	}
}
