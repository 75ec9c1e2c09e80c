package configstore

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changed asset files so a running operator station can
// recompose tasks when a technician edits a style or variant. Only write
// and create events on record files are forwarded.
type Watcher struct {
	Changed <-chan string

	fs        *fsnotify.Watcher
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the given directories for record changes. A nil
// logger falls back to slog.Default.
func Watch(logger *slog.Logger, dirs ...string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	changed := make(chan string, 16)
	w := &Watcher{Changed: changed, fs: fs, logger: logger, done: make(chan struct{})}
	go w.loop(changed)
	return w, nil
}

func (w *Watcher) loop(changed chan<- string) {
	defer close(changed)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isRecordFile(filepath.Base(event.Name)) {
				continue
			}
			w.logger.Info("asset changed", "path", event.Name, "op", event.Op.String())
			select {
			case changed <- event.Name:
			case <-w.done:
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("asset watcher error", "err", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and closes the Changed channel. Safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
