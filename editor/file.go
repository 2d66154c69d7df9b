package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileSurface serves documents from files under a root directory. Reads load
// the file into a working buffer, full-text replaces mutate only the buffer,
// and Persist writes the buffer back atomically. A filesystem watcher reports
// files of open targets that change on disk outside Persist.
type FileSurface struct {
	root   string
	logger *zap.Logger

	mu          sync.Mutex
	buffers     map[string]string // target -> working text
	targets     map[string]string // absolute file path -> target
	watchedDirs map[string]bool
	onChange    func(target string)

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewFileSurface creates a FileSurface rooted at dir and starts its change
// watcher.
func NewFileSurface(dir string, logger *zap.Logger) (*FileSurface, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("surface root %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("surface root %q is not a directory", dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &FileSurface{
		root:        root,
		logger:      logger,
		buffers:     make(map[string]string),
		targets:     make(map[string]string),
		watchedDirs: make(map[string]bool),
		watcher:     watcher,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go s.watchLoop()
	return s, nil
}

// path resolves a target to its absolute file path, rejecting targets that
// escape the surface root.
func (s *FileSurface) path(target string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(target))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("target %q escapes surface root", target)
	}
	return p, nil
}

func (s *FileSurface) ReadFullText(_ context.Context, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text, ok := s.buffers[target]; ok {
		return text, nil
	}
	return s.load(target)
}

func (s *FileSurface) ShowActive(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[target]; ok {
		return nil
	}
	_, err := s.load(target)
	return err
}

// load reads the target's file into a fresh buffer and starts watching its
// directory. Caller holds mu.
func (s *FileSurface) load(target string) (string, error) {
	path, err := s.path(target)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("read %q: %w", target, ErrNotFound)
		}
		return "", fmt.Errorf("read %q: %w", target, err)
	}
	text := string(data)
	s.buffers[target] = text
	s.targets[path] = target

	// Watch the parent directory rather than the file itself: rename-based
	// saves would otherwise invalidate a per-file watch.
	dir := filepath.Dir(path)
	if !s.watchedDirs[dir] {
		if err := s.watcher.Add(dir); err != nil {
			s.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		} else {
			s.watchedDirs[dir] = true
		}
	}
	return text, nil
}

func (s *FileSurface) ApplyFullTextReplace(_ context.Context, target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[target]; !ok {
		return fmt.Errorf("replace %q: %w", target, ErrNotFound)
	}
	s.buffers[target] = text
	return nil
}

// Highlight is a no-op: files carry no decorations.
func (s *FileSurface) Highlight(context.Context, string, []Highlight) error { return nil }

// Reveal is a no-op: files have no viewport.
func (s *FileSurface) Reveal(context.Context, string, Range) error { return nil }

func (s *FileSurface) Persist(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, ok := s.buffers[target]
	if !ok {
		return fmt.Errorf("persist %q: %w", target, ErrNotFound)
	}
	path, err := s.path(target)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist %q: %w", target, err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist %q: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist %q: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist %q: %w", target, err)
	}
	return nil
}

// OnExternalChange registers fn to run when an open target's file changes on
// disk outside Persist. At most one callback is active at a time.
func (s *FileSurface) OnExternalChange(fn func(target string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *FileSurface) watchLoop() {
	defer close(s.done)

	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				s.handleChange(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", zap.Error(err))
		case <-s.stop:
			return
		}
	}
}

// handleChange refreshes the buffer of a changed open target and notifies
// the callback. Writes performed by Persist leave the file equal to the
// buffer and are ignored.
func (s *FileSurface) handleChange(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	s.mu.Lock()
	target, ok := s.targets[path]
	if !ok || s.buffers[target] == string(data) {
		s.mu.Unlock()
		return
	}
	s.buffers[target] = string(data)
	fn := s.onChange
	s.mu.Unlock()

	s.logger.Info("document changed on disk outside the session", zap.String("target", target))
	if fn != nil {
		fn(target)
	}
}

// Close stops the change watcher. Unsaved buffer contents are discarded;
// call Persist first to keep them.
func (s *FileSurface) Close() error {
	close(s.stop)
	<-s.done
	return s.watcher.Close()
}

var _ Surface = (*FileSurface)(nil)
