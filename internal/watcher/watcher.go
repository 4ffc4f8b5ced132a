package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/reporting"
	"github.com/Amund211/msgstore/internal/strutils"
	"github.com/fsnotify/fsnotify"
)

type forgetter interface {
	Forget(key domain.MessageKey) bool
}

// Watcher forgets cached messages whose file changed on disk.
// It watches the root directory and every folder directly below it.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	store     forgetter

	closeOnce sync.Once
}

func New(root string, store forgetter) (*Watcher, error) {
	root = filepath.Clean(strings.TrimPrefix(root, "file://"))

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      root,
		store:     store,
	}

	if err := w.fsWatcher.Add(root); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch root: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to list root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strutils.ValidatePathSegment(entry.Name()) != nil {
			continue
		}
		if err := w.fsWatcher.Add(filepath.Join(root, entry.Name())); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch folder %s: %w", entry.Name(), err)
		}
	}

	return w, nil
}

// Run processes file system events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.WarnContext(ctx, "Watcher event queue overflowed", "error", err.Error())
				continue
			}
			reporting.Report(ctx, fmt.Errorf("watcher error: %w", err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	logger := logging.FromContext(ctx)

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	folder, name, nested := strings.Cut(rel, string(filepath.Separator))
	if !nested {
		// A new folder directly below the root
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.fsWatcher.Add(event.Name); err != nil {
					logger.WarnContext(ctx, "Failed to watch new folder", "folder", folder, "error", err.Error())
				}
			}
		}
		return
	}

	if strings.ContainsRune(name, filepath.Separator) {
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Chmod) {
		return
	}

	key := domain.NewMessageKey(folder, name)
	if w.store.Forget(key) {
		ctx = logging.AddKeyToContext(ctx, key)
		logging.FromContext(ctx).InfoContext(ctx, "Forgot changed message", "op", event.Op.String())
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	return err
}
