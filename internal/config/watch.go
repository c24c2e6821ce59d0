package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchForExternalEdits logs whenever the config file is written or created
// on disk. It does not tell edits from other programs apart from this
// process's own Patch/Save calls; both are logged. DevMan deliberately does not
// hot-reload (§9 Design Notes: the process boundary is the consistency
// unit) — this is observability only.
func WatchForExternalEdits(path string, logger *slog.Logger) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Info("config file changed on disk; restart to apply", "path", path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return w, nil
}
