package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/livepeer/pipectl/internal/obslog"
)

// WatchFile watches path for writes and invokes onChange with a
// freshly-loaded Descriptor each time. No subcommand calls it: `serve`
// and the others load the descriptor once at startup.
func WatchFile(ctx context.Context, path string, fs func() (Descriptor, error), onChange func(Descriptor)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				d, err := fs()
				if err != nil {
					obslog.LogNoID("config: reload failed", "err", err.Error())
					continue
				}
				onChange(d)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				obslog.LogNoID("config: watch error", "err", err.Error())
			}
		}
	}()
	return nil
}
