package main

import (
	"github.com/spf13/cobra"

	"github.com/ezoic/churn/artifacts"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/serving"
	"github.com/ezoic/churn/tracking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions from the current bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Serving.Addr = addr
		}
		return serve(cmd)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides serving.addr)")
}

func serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := log.GetLoggerWithName("cli")

	store, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	bundle, err := store.Load()
	switch {
	case scigoErrors.Is(err, artifacts.ErrNotFound) && cfg.Serving.RequireBundle:
		return err
	case scigoErrors.Is(err, artifacts.ErrNotFound):
		logger.Warn("No bundle yet, /predict answers 500 until one is trained", log.PathKey, store.Dir())
	case err != nil:
		return err
	default:
		logger.Info("Bundle loaded", log.BundleIDKey, bundle.Metadata.ID)
	}
	holder := serving.NewHolder(bundle)

	opts := []serving.Option{serving.WithKeep(cfg.Artifacts.Keep)}
	if cfg.Tracking.Enabled {
		tracker, err := tracking.Open(cfg.Tracking.DSN)
		if err != nil {
			return err
		}
		defer tracker.Close()
		opts = append(opts, serving.WithTracker(tracker, cfg.Tracking.Experiment))
	}
	handlers, err := serving.NewHandlers(holder, store, cfg.Prepare(), opts...)
	if err != nil {
		return err
	}

	if cfg.Serving.WatchBundles {
		w, err := serving.NewBundleWatcher(store, holder)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("Bundle watcher stopped", "error", err)
			}
		}()
	}

	return serving.NewServer(handlers, cfg.Serving).Serve(ctx)
}
