package serving

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ezoic/churn/artifacts"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// BundleWatcher swaps the served bundle when the store's current pointer
// moves, so bundles saved by `churn --save` or another server are picked
// up without a restart.
type BundleWatcher struct {
	store  *artifacts.Store
	holder *Holder
	w      *fsnotify.Watcher
	logger log.Logger
}

// NewBundleWatcher starts watching the store directory. Events are only
// consumed once Run is called.
func NewBundleWatcher(store *artifacts.Store, holder *Holder) (*BundleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, scigoErrors.Wrap(err, "create watcher")
	}
	if err := w.Add(store.Dir()); err != nil {
		w.Close()
		return nil, scigoErrors.Wrapf(err, "watch %s", store.Dir())
	}
	return &BundleWatcher{
		store:  store,
		holder: holder,
		w:      w,
		logger: log.GetLoggerWithName("watcher"),
	}, nil
}

// Run reloads the bundle on every change of the current pointer until ctx
// is done. A bundle that fails to load is logged and the old one is kept.
func (bw *BundleWatcher) Run(ctx context.Context) error {
	defer bw.w.Close()
	current := filepath.Base(bw.store.CurrentPath())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-bw.w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != current || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			bw.reload()
		case err, ok := <-bw.w.Errors:
			if !ok {
				return nil
			}
			bw.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (bw *BundleWatcher) reload() {
	id, err := bw.store.CurrentID()
	if err != nil || id == bw.holder.ID() {
		return
	}
	b, err := bw.store.Load()
	if err != nil {
		bw.logger.Error("Reloading bundle failed", "error", err, log.BundleIDKey, id)
		return
	}
	bw.holder.Store(b)
	bw.logger.Info("Bundle reloaded", log.BundleIDKey, b.Metadata.ID)
}
