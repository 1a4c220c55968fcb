// Package watcher observes a project tree and turns raw file-system
// events into debounced FileChange records with line-level diffs for
// text files and size accounting for binaries.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/util/timefmt"
)

const (
	// DebounceDelay is how long a path must stay quiet before its
	// pending event fires. A new event on the same path restarts it.
	DebounceDelay = 300 * time.Millisecond

	stabilityWindow   = 200 * time.Millisecond
	stabilityPoll     = 50 * time.Millisecond
	stabilityDeadline = 5 * time.Second

	cacheCapacity = 500
)

type pendingEvent struct {
	timer      *time.Timer
	changeType string
}

// Watcher watches one project directory. Events are delivered to the
// emit callback serialized per path by the debounce timers.
type Watcher struct {
	root  string
	emit  func(protocol.FileChange)
	fw    *fsnotify.Watcher
	cache *contentCache

	debounce  time.Duration
	stillness time.Duration
	poll      time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	closed  bool
	wg      sync.WaitGroup
}

// New creates a watcher rooted at dir. Call Start to begin watching.
func New(dir string, emit func(protocol.FileChange)) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat project: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project %q is not a directory", abs)
	}
	return &Watcher{
		root:      abs,
		emit:      emit,
		cache:     newContentCache(cacheCapacity),
		debounce:  DebounceDelay,
		stillness: stabilityWindow,
		poll:      stabilityPoll,
		pending:   make(map[string]*pendingEvent),
	}, nil
}

// Start performs the initial recursive scan, then begins delivering
// events. The scan primes the content cache and emits nothing; it
// completes before Start returns.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.fw = fw

	if err := w.scan(w.root); err != nil {
		fw.Close()
		return fmt.Errorf("initial scan: %w", err)
	}

	w.wg.Add(1)
	go w.loop()
	slog.Info("watching project", "root", w.root, "cached", w.cache.Len())
	return nil
}

// scan walks the tree rooted at dir, registering directory watches and
// priming the text content cache.
func (w *Watcher) scan(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("scan skipping", "path", path, "error", err)
			return nil
		}
		rel, rerr := filepath.Rel(w.root, path)
		if rerr != nil {
			return nil
		}
		if rel != "." && ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if werr := w.fw.Add(path); werr != nil {
				slog.Warn("cannot watch directory", "path", path, "error", werr)
			}
			return nil
		}
		if isBinary(path) {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			slog.Debug("scan read failed", "path", path, "error", rerr)
			return nil
		}
		w.cache.Put(path, string(data))
		return nil
	})
}

// Close stops event delivery and cancels pending debounce timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]*pendingEvent)
	w.mu.Unlock()

	var err error
	if w.fw != nil {
		err = w.fw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || ignored(rel) {
		return
	}

	if ev.Op.Has(fsnotify.Create) {
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			w.addDirTree(ev.Name)
			return
		}
	}

	var changeType string
	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		changeType = protocol.ChangeUnlink
	case ev.Op.Has(fsnotify.Create):
		changeType = protocol.ChangeAdd
	case ev.Op.Has(fsnotify.Write):
		changeType = protocol.ChangeModify
	default:
		return
	}
	w.schedule(ev.Name, changeType)
}

// addDirTree watches a directory created after Start and schedules add
// events for any files that landed before the watch was in place.
func (w *Watcher) addDirTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, path)
		if rerr != nil {
			return nil
		}
		if ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if werr := w.fw.Add(path); werr != nil {
				slog.Warn("cannot watch directory", "path", path, "error", werr)
			}
			return nil
		}
		w.schedule(path, protocol.ChangeAdd)
		return nil
	})
}

// schedule arms or restarts the debounce timer for path. An unlink
// supersedes a pending add/change; otherwise the earliest type wins so
// a create followed by writes still reports as an add.
func (w *Watcher) schedule(path, changeType string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		if changeType != protocol.ChangeUnlink {
			changeType = p.changeType
		}
	}
	ct := changeType
	p := &pendingEvent{changeType: ct}
	p.timer = time.AfterFunc(w.debounce, func() {
		w.process(path, ct)
	})
	w.pending[path] = p
}

func (w *Watcher) process(path, changeType string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	change := protocol.FileChange{
		Path:      filepath.ToSlash(rel),
		Type:      changeType,
		Timestamp: timefmt.NowMillis(),
	}

	if changeType == protocol.ChangeUnlink {
		if !isBinary(path) {
			if prev, ok := w.cache.Get(path); ok {
				change.LinesRemoved = countLines(prev)
			}
			w.cache.Delete(path)
		}
		w.emit(change)
		return
	}

	w.waitStable(path)

	if isBinary(path) {
		info, serr := os.Stat(path)
		if serr != nil {
			slog.Warn("stat failed, skipping event", "path", change.Path, "error", serr)
			return
		}
		size := info.Size()
		change.SizeAfter = &size
		w.emit(change)
		return
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		slog.Warn("read failed, skipping event", "path", change.Path, "error", rerr)
		return
	}
	content := string(data)
	prev, hadPrev := w.cache.Get(path)
	w.cache.Put(path, content)

	if changeType == protocol.ChangeAdd || !hadPrev {
		change.LinesAdded = countLines(content)
	} else {
		d := diffLines(prev, content)
		change.LinesAdded = d.Added
		change.LinesRemoved = d.Removed
		change.Diff = d.Excerpt
	}
	w.emit(change)
}

// waitStable polls until size and mtime stay unchanged for the
// stillness window, bounded by a hard deadline for files under
// sustained write.
func (w *Watcher) waitStable(path string) {
	deadline := time.Now().Add(stabilityDeadline)
	var lastSize int64 = -1
	var lastMod time.Time
	still := time.Duration(0)

	for still < w.stillness && time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.Size() == lastSize && info.ModTime().Equal(lastMod) {
			still += w.poll
		} else {
			still = 0
			lastSize = info.Size()
			lastMod = info.ModTime()
		}
		time.Sleep(w.poll)
	}
}
