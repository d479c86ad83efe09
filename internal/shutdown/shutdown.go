package shutdown

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"polyagent/internal/logger"
)

// Signal collapses the three stop channels (SIGINT/SIGTERM, a STOP marker
// file, a remote command) into a single cancellation source. Components
// observe it through the derived context at their own checkpoints.
type Signal struct {
	ctx      context.Context
	cancel   context.CancelFunc
	stopFile string
}

// New derives a cancellable context from parent and starts the watchers.
// stopFile may be empty to disable the file trigger.
func New(parent context.Context, stopFile string) *Signal {
	ctx, cancel := context.WithCancel(parent)
	s := &Signal{ctx: ctx, cancel: cancel, stopFile: stopFile}

	go s.watchSignals()
	if stopFile != "" {
		go s.watchStopFile()
	}
	return s
}

// Context is done once any stop source has fired.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Requested reports whether a shutdown has been requested. Schedulers poll
// this at step boundaries between candidates.
func (s *Signal) Requested() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Trigger requests shutdown from a remote command (telegram /stop, HTTP).
func (s *Signal) Trigger(source string) {
	logger.Infof("shutdown requested (%s)", source)
	s.cancel()
}

func (s *Signal) watchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-ch:
		logger.Infof("shutdown requested (signal %s)", sig)
		s.cancel()
	case <-s.ctx.Done():
	}
	signal.Stop(ch)
}

func (s *Signal) watchStopFile() {
	// The file usually does not exist yet, so watch its directory.
	dir := filepath.Dir(s.stopFile)
	if dir == "" {
		dir = "."
	}

	if s.stopFilePresent() {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("shutdown: fsnotify unavailable (%v), polling STOP file", err)
		s.pollStopFile()
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		logger.Warnf("shutdown: watch %s failed (%v), polling STOP file", dir, err)
		s.pollStopFile()
		return
	}

	for {
		select {
		case evt := <-watcher.Events:
			if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 && filepath.Clean(evt.Name) == filepath.Clean(s.stopFile) {
				if s.stopFilePresent() {
					return
				}
			}
		case err := <-watcher.Errors:
			logger.Warnf("shutdown: watcher error: %v", err)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Signal) pollStopFile() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.stopFilePresent() {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Signal) stopFilePresent() bool {
	if _, err := os.Stat(s.stopFile); err != nil {
		return false
	}
	logger.Infof("shutdown requested (STOP file %s)", s.stopFile)
	// Remove the marker so the next start is clean.
	os.Remove(s.stopFile)
	s.cancel()
	return true
}
