package plugins

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounceWindow collapses bursts of filesystem events into one reload.
// Editors and archive extraction produce many writes in quick succession.
const debounceWindow = 500 * time.Millisecond

// Watcher reloads the loader when the plugins directory changes.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching the loader's plugins directory. Stop it by
// cancelling the context passed to Run.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(loader.pluginsDir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{loader: loader, watcher: fw}, nil
}

// Run blocks processing events until ctx is cancelled. Any create, write,
// rename, or remove under the plugins directory arms the debounce timer;
// when it fires with no further events, one reload runs.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	timer := time.NewTimer(debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("plugin dir changed")
			timer.Reset(debounceWindow)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("plugin watcher error")

		case <-timer.C:
			if err := w.loader.Reload(); err != nil {
				log.Error().Err(err).Msg("reload after filesystem change failed")
			}
		}
	}
}
