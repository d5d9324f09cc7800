// Package watcher watches a directory tree for new or changed image files
// and dispatches them to a detection callback, using fsnotify.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

var imageExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether path's extension is a format idetimage.Load
// can decode.
func IsImageFile(path string) bool {
	return imageExt[strings.ToLower(filepath.Ext(path))]
}

// DetectFunc is invoked once per debounced image-file change.
type DetectFunc func(path string) error

// Watcher watches one or more directory trees and calls a DetectFunc for
// every new or modified image file beneath them.
type Watcher struct {
	fw     *fsnotify.Watcher
	detect DetectFunc
}

// New creates a Watcher that calls detect for every changed image file.
func New(detect DetectFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Watcher{fw: fw, detect: detect}, nil
}

// Watch adds rootDir (and all subdirectories) to the watch list and begins
// processing events. It blocks until done is closed or an unrecoverable
// error occurs. Call this in a goroutine.
func (w *Watcher) Watch(rootDir string, done <-chan struct{}) error {
	if err := w.addDirRecursive(rootDir); err != nil {
		return err
	}

	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-done:
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			path := event.Name

			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(path); err == nil && fi.IsDir() {
					_ = w.addDirRecursive(path)
				}
			}

			if !IsImageFile(path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if t, ok := pending[path]; ok {
					t.Stop()
				}
				pending[path] = time.AfterFunc(300*time.Millisecond, func() {
					fmt.Fprintf(os.Stderr, "[watch] detecting %s\n", path)
					if err := w.detect(path); err != nil {
						fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
					}
				})
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
		}
	}
}

// addDirRecursive adds dir and all non-hidden subdirectories to the watcher.
func (w *Watcher) addDirRecursive(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			if err := w.addDirRecursive(filepath.Join(dir, e.Name())); err != nil {
				fmt.Fprintf(os.Stderr, "[watch] skip dir: %v\n", err)
			}
		}
	}
	return nil
}
