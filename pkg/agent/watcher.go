package agent

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/mothershiphq/mothership/pkg/log"
)

// defaultIgnoreSegments are path segments that mark a file as noise
// regardless of project: dependency and build output, VCS metadata,
// and the agent's own bookkeeping directory.
var defaultIgnoreSegments = []string{
	"target/", "node_modules/", ".git/", "dist/", "build/", ".mothership/",
}

// FileEvent is an accepted, filtered change within a tracked project.
type FileEvent struct {
	Path    string // absolute path
	RelPath string // path relative to the project root
}

// Watcher recursively mirrors a project root into an fsnotify watch
// set and filters raw events down to ones worth diffing.
type Watcher struct {
	root   string
	ignore []string
	fsw    *fsnotify.Watcher
	events chan FileEvent

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a recursive watcher rooted at root. extraIgnore
// augments defaultIgnoreSegments per the project's watcher config.
func NewWatcher(root string, extraIgnore []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:   root,
		ignore: append(append([]string{}, defaultIgnoreSegments...), extraIgnore...),
		fsw:    fsw,
		events: make(chan FileEvent, 256),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive walks root and adds a watch for every directory,
// including ones created after the walk starts, so a multi-level
// mkdir doesn't leave subdirectories unwatched.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if w.isIgnored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.WithComponent("agent.watcher").Warn().Str("path", path).Err(err).Msg("failed to add watch")
		}
		return nil
	})
}

// Events returns the filtered event stream. Run must be consuming the
// underlying fsnotify channel for events to appear here.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Run drains the raw fsnotify stream, filters it, and forwards
// accepted events until ctx-equivalent Close is called.
func (w *Watcher) Run() {
	logger := log.WithComponent("agent.watcher")
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.events)
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return // removed again before we could stat it
	}
	if info.IsDir() {
		// newly created directory: start watching it too.
		if ev.Op&fsnotify.Create != 0 && !w.isIgnored(ev.Name) {
			if err := w.addRecursive(ev.Name); err != nil {
				log.WithComponent("agent.watcher").Warn().Str("path", ev.Name).Err(err).Msg("failed to watch new directory")
			}
		}
		return
	}

	if w.isIgnored(ev.Name) {
		return
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}

	if !isReadableUTF8(ev.Name) {
		return
	}

	select {
	case w.events <- FileEvent{Path: ev.Name, RelPath: filepath.ToSlash(rel)}:
	default:
		log.WithComponent("agent.watcher").Warn().Str("path", ev.Name).Msg("event queue full, dropping")
	}
}

// isIgnored reports whether path should never reach the diff engine:
// hidden files, and any path containing a known noise segment.
func (w *Watcher) isIgnored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." {
		return true
	}

	slash := filepath.ToSlash(path) + "/"
	for _, seg := range w.ignore {
		if strings.Contains(slash, "/"+seg) || strings.HasPrefix(slash, seg) {
			return true
		}
	}
	return false
}

func isReadableUTF8(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return utf8.Valid(data)
}

// Close stops the watcher and releases its fsnotify handle. Safe to
// call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}
