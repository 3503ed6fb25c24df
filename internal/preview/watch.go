package preview

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// DefaultDebounce is how long the watcher waits for more changes before rebuilding.
const DefaultDebounce = 300 * time.Millisecond

// newDebouncer returns a request channel and a trigger. Bursts of triggers within
// delay collapse into a single request.
func newDebouncer(delay time.Duration) (chan struct{}, func()) {
	var mu sync.Mutex
	var timer *time.Timer
	reqs := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case reqs <- struct{}{}:
			default:
			}
		})
	}
	return reqs, trigger
}

// ignoreFilter decides which filesystem events are noise: output written by the
// build itself, caches and editor temp files.
type ignoreFilter struct {
	dirs []string
}

func newIgnoreFilter(dirs ...string) ignoreFilter {
	f := ignoreFilter{}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if abs, err := filepath.Abs(d); err == nil {
			f.dirs = append(f.dirs, abs)
		}
	}
	return f
}

func (f ignoreFilter) underIgnoredDir(path string) bool {
	for _, d := range f.dirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (f ignoreFilter) ignore(path string) bool {
	if abs, err := filepath.Abs(path); err == nil && f.underIgnoredDir(abs) {
		return true
	}
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case strings.HasSuffix(base, "-journal"),
		strings.HasSuffix(base, "-wal"),
		strings.HasSuffix(base, "-shm"):
		return true
	case base == "Thumbs.db":
		return true
	}
	return false
}

func (s *Server) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "create file watcher").Build()
	}
	if err := s.addDirs(w, s.opts.Src); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (s *Server) addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.WrapError(err, errors.CategoryFileSystem, "watch source directory").
					WithContext(logfields.KeySrc, root).Build()
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && s.filter.ignore(path) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			s.logger.Warn("Could not watch directory", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

func (s *Server) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, trigger func()) {
	if s.filter.ignore(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = s.addDirs(w, ev.Name)
		}
	}
	s.logger.Debug("File change detected", logfields.Path(ev.Name), "op", ev.Op.String())
	trigger()
}
