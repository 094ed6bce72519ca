package gpio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// FileLine is a sensor line backed by a text file holding "0" or "1".
// Every write that changes the level becomes an edge. Useful on machines
// without GPIO: `echo 0 > level; echo 1 > level` is one knock.
type FileLine struct {
	path    string
	watcher *fsnotify.Watcher
	logger  ports.Logger

	// edges holds at most one pending edge. When it is full a falling edge
	// replaces the pending one and a rising edge is dropped.
	edges chan domain.Edge
	errs  chan error
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	level domain.Level
}

// OpenFileLine watches path. The file must exist and hold a valid level.
func OpenFileLine(path string, logger ports.Logger) (*FileLine, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	level, err := readLevel(abs)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen too.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	l := &FileLine{
		path:    abs,
		watcher: watcher,
		logger:  logger,
		edges:   make(chan domain.Edge, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		level:   level,
	}
	l.wg.Add(1)
	go l.run()

	logger.Info("file sensor line watching",
		ports.String("path", abs),
		ports.String("level", level.String()),
	)
	return l, nil
}

// WaitForEdge blocks until the file level changes, ctx is done or the line
// is closed.
func (l *FileLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	select {
	case <-ctx.Done():
		return domain.Edge{}, ctx.Err()
	case edge := <-l.edges:
		return edge, nil
	case err := <-l.errs:
		return domain.Edge{}, err
	case <-l.done:
		return domain.Edge{}, ErrLineClosed
	}
}

// Close stops watching. Safe to call more than once.
func (l *FileLine) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.watcher.Close()
		l.wg.Wait()
	})
	return err
}

func (l *FileLine) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			l.check()

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("file sensor watch error", ports.Err(err))
			select {
			case l.errs <- err:
			default:
			}
		}
	}
}

// check reads the file and publishes an edge if the level changed. A
// truncated or half-written file is ignored until the next event.
func (l *FileLine) check() {
	level, err := readLevel(l.path)
	if err != nil {
		l.logger.Debug("file sensor unreadable", ports.Err(err))
		return
	}
	if level == l.level {
		return
	}
	l.level = level

	edge := domain.Edge{Kind: domain.EdgeRising, At: time.Now()}
	if level == domain.Low {
		edge.Kind = domain.EdgeFalling
	}
	l.publish(edge)
}

func (l *FileLine) publish(edge domain.Edge) {
	for {
		select {
		case l.edges <- edge:
			return
		default:
		}
		if edge.Kind != domain.EdgeFalling {
			return
		}
		select {
		case <-l.edges:
		default:
		}
	}
}

func readLevel(path string) (domain.Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Low, fmt.Errorf("read level: %w", err)
	}
	switch string(bytes.TrimSpace(data)) {
	case "0":
		return domain.Low, nil
	case "1":
		return domain.High, nil
	default:
		return domain.Low, fmt.Errorf("read level: %s holds %q, want 0 or 1", path, bytes.TrimSpace(data))
	}
}
