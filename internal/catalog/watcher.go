package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/descriptor"
)

type change int

const (
	changeNone change = iota
	changeUpdated
	changeDeleted
)

// changeOf classifies a file event. Editors often replace files through a
// rename, so renames count as deletions and the follow-up create reloads.
func changeOf(op fsnotify.Op) change {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return changeDeleted
	case op.Has(fsnotify.Create), op.Has(fsnotify.Write):
		return changeUpdated
	default:
		return changeNone
	}
}

// Watcher loads descriptor files into a Manager and keeps them in sync with
// the files on disk.
type Watcher struct {
	mgr   *Manager
	codec *descriptor.Codec
	fs    *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]string // absolute path -> source name
}

func NewWatcher(mgr *Manager, codec *descriptor.Codec) (*Watcher, error) {
	if codec == nil {
		codec = descriptor.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{mgr: mgr, codec: codec, fs: fs, files: make(map[string]string)}, nil
}

// Add loads a descriptor file and starts watching it. Its directory is
// watched so that replaced files are picked up.
func (w *Watcher) Add(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	_, known := w.files[abs]
	if !known {
		w.files[abs] = ""
	}
	w.mu.Unlock()

	if !known {
		if err := w.fs.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
		}
	}
	return w.load(ctx, abs)
}

func (w *Watcher) load(ctx context.Context, path string) error {
	desc, err := w.codec.DecodeFile(path)
	if err != nil {
		return err
	}
	if _, err := w.mgr.Put(ctx, desc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	w.mu.Lock()
	prev := w.files[path]
	w.files[path] = desc.Name
	w.mu.Unlock()

	if prev != "" && prev != desc.Name {
		w.mgr.Remove(prev)
	}
	return nil
}

func (w *Watcher) unload(path string) {
	w.mu.Lock()
	name := w.files[path]
	w.files[path] = ""
	w.mu.Unlock()
	if name != "" {
		w.mgr.Remove(name)
		logrus.WithFields(logrus.Fields{"source": name, "file": path}).Info("descriptor file removed")
	}
}

// Run applies file changes until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("descriptor watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	_, tracked := w.files[path]
	w.mu.Unlock()
	if !tracked {
		return
	}

	switch changeOf(ev.Op) {
	case changeUpdated:
		if err := w.load(ctx, path); err != nil {
			logrus.WithError(err).WithField("file", path).Error("failed to reload descriptor")
			return
		}
		logrus.WithField("file", path).Info("descriptor reloaded")
	case changeDeleted:
		w.unload(path)
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
