package analytics

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/unwind/pkg/observability"
)

// PolicyWatcher keeps the policy from a YAML file current. A file that fails
// to parse or validate is logged and ignored; the previous policy stays.
type PolicyWatcher struct {
	path     string
	current  atomic.Pointer[Policy]
	onChange func(Policy)
	logger   *observability.Logger
}

// NewPolicyWatcher loads path once and returns a watcher for it. onChange is
// called with every successfully reloaded policy.
func NewPolicyWatcher(path string, onChange func(Policy), logger *observability.Logger) (*PolicyWatcher, error) {
	policy, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	w := &PolicyWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger.WithField("policy_file", path),
	}
	w.current.Store(&policy)
	return w, nil
}

// Policy returns the active policy
func (w *PolicyWatcher) Policy() Policy {
	return *w.current.Load()
}

// Run watches the policy file until ctx is cancelled. The parent directory is
// watched so that editors replacing the file are noticed.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("Watching policy file for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Policy watcher error")
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid policy file")
		return
	}
	w.current.Store(&policy)
	w.logger.Info("Policy reloaded")
	if w.onChange != nil {
		w.onChange(policy)
	}
}
