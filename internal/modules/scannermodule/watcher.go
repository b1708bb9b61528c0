package scannermodule

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/logger"
)

// Watcher follows enabled library roots and their movie directories with
// fsnotify and enqueues a directory-scan after a quiet period. The debounce
// absorbs the event storms a copy-in-progress produces.
type Watcher struct {
	db       *gorm.DB
	module   *Module
	debounce time.Duration

	fs     *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	roots  map[string]uint // library root path -> library id
	done   chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin following libraries.
func NewWatcher(db *gorm.DB, module *Module, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		db:       db,
		module:   module,
		debounce: debounce,
		fs:       fs,
		timers:   make(map[string]*time.Timer),
		roots:    make(map[string]uint),
		done:     make(chan struct{}),
	}, nil
}

// Start registers all enabled library roots and launches the event loop.
func (w *Watcher) Start() error {
	var libraries []database.Library
	if err := w.db.Where("enabled = ?", true).Find(&libraries).Error; err != nil {
		return err
	}
	for _, library := range libraries {
		w.WatchLibrary(&library)
	}
	go w.loop()
	return nil
}

// Stop cancels pending timers and closes the underlying watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.fs.Close()

	w.mu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
}

// WatchLibrary adds a library root and its current movie directories.
func (w *Watcher) WatchLibrary(library *database.Library) {
	if err := w.fs.Add(library.RootPath); err != nil {
		logger.Warn("Cannot watch library root", "path", library.RootPath, "error", err.Error())
		return
	}

	w.mu.Lock()
	w.roots[library.RootPath] = library.ID
	w.mu.Unlock()

	entries, err := os.ReadDir(library.RootPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || w.module.Matcher().Match(entry.Name()) {
			continue
		}
		if err := w.fs.Add(filepath.Join(library.RootPath, entry.Name())); err != nil {
			logger.Debug("Cannot watch directory", "dir", entry.Name(), "error", err.Error())
		}
	}
	logger.Info("Watching library", "path", library.RootPath)
}

// UnwatchLibrary removes a library root. Movie directory watches expire on
// their own when fsnotify reports them gone.
func (w *Watcher) UnwatchLibrary(rootPath string) {
	w.fs.Remove(rootPath)
	w.mu.Lock()
	delete(w.roots, rootPath)
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if w.module.Matcher().Match(name) {
		return
	}

	libraryID, dir := w.resolve(event.Name)
	if libraryID == 0 {
		return
	}

	// A new directory under the root is a new movie folder: watch it too.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(event.Name); err == nil {
				dir = event.Name
			}
		}
	}

	w.schedule(libraryID, dir)
}

// resolve maps an event path to its library and the movie directory to
// rescan. Events on the root itself target the root; events inside a movie
// directory target that directory.
func (w *Watcher) resolve(path string) (uint, string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for root, libraryID := range w.roots {
		if path == root {
			return libraryID, root
		}
		if !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return libraryID, root
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) == 1 {
			// Direct child of the root. Directories scan themselves, loose
			// files rescan the root.
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return libraryID, path
			}
			return libraryID, root
		}
		return libraryID, filepath.Join(root, parts[0])
	}
	return 0, ""
}

// schedule arms (or re-arms) the per-directory debounce timer.
func (w *Watcher) schedule(libraryID uint, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[dir]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[dir] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, dir)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if _, err := w.module.EnqueueDirectoryScan(libraryID, dir, "", 0, false); err != nil {
			logger.Warn("Watcher enqueue failed", "dir", dir, "error", err.Error())
		} else {
			logger.Debug("Watcher enqueued rescan", "dir", dir)
		}
	})
}
