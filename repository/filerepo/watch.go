package filerepo

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch returns a channel that receives a signal whenever a file directly
// inside the repository root is created, written, removed, or renamed;
// subdirectories of the root are not watched. This is a
// convenience for callers that want to trigger an out-of-band Reader.Read
// instead of waiting for the next periodic sweep; the core reconciliation
// loop never depends on it. The channel is closed when ctx is cancelled.
func (r *Repository) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(r.root); err != nil {
		watcher.Close()
		return nil, err
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case signals <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return signals, nil
}
