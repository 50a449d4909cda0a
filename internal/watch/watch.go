// Package watch provides an fsnotify-backed implementation of the
// transmitter's injectable updates_available() predicate (spec §4.3, §9:
// "the spec keeps it as an injected predicate for future change-detection
// logic"). It is never wired in by default — Manager.Publish uses the
// spec's always-true stub — but gives that hook a concrete, testable
// implementation grounded on the pack's own use of fsnotify.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Detector reports true the first time it's asked after construction or
// after observing a write, create, remove or rename event under the
// watched path, then resets until the next such event — one "dirty" flag
// per advertise cycle.
type Detector struct {
	watcher *fsnotify.Watcher
	dirty   atomic.Bool
	done    chan struct{}
}

// NewDetector starts watching path (and, if it's a directory, every
// subdirectory present at construction time) for writes/creates/removes/
// renames.
func NewDetector(path string) (*Detector, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(w, path); err != nil {
		w.Close()
		return nil, err
	}
	d := &Detector{watcher: w, done: make(chan struct{})}
	d.dirty.Store(true) // an initial advertise is always warranted
	go d.run()
	return d, nil
}

func (d *Detector) run() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				d.dirty.Store(true)
			}
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		case <-d.done:
			return
		}
	}
}

// Predicate returns the injectable updates_available() function (spec
// §4.3) backed by this detector: true at most once per observed change,
// false otherwise.
func (d *Detector) Predicate() func() bool {
	return func() bool {
		return d.dirty.Swap(false)
	}
}

// Close stops the underlying watcher.
func (d *Detector) Close() error {
	close(d.done)
	return d.watcher.Close()
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
