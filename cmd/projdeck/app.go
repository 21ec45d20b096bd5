package main

import (
	"fmt"
	"log/slog"

	"github.com/asheshgoplani/projdeck/internal/logging"
	"github.com/asheshgoplani/projdeck/internal/session"
	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/tmux"
)

var cliLog = logging.ForComponent(logging.CompCLI)

// app bundles the loaded configuration, store, document and tmux client
// for one command invocation.
type app struct {
	cfg   *session.UserConfig
	store *session.Storage
	mux   *tmux.Client
	doc   *state.Document
}

func openApp(out *CLIOutput) (*app, error) {
	cfg, err := session.LoadUserConfig()
	if err != nil {
		out.Warn(fmt.Sprintf("using defaults: %v", err))
	}
	store, err := session.NewStorageWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	doc, err := store.LoadDocument()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return &app{
		cfg:   cfg,
		store: store,
		mux:   tmux.NewClient(cfg.Tmux.Socket),
		doc:   doc,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		cliLog.Warn("storage_close_failed", slog.String("error", err.Error()))
	}
}

func (a *app) save() error {
	if err := a.store.Save(a.doc); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// refresh reconciles against tmux and saves when anything changed. It
// returns the live sessions; on enumeration failure the document is left
// as loaded and the error is returned.
func (a *app) refresh() (session.ReconcileResult, []tmux.LiveSession, error) {
	r := session.NewReconciler(a.mux)
	r.Now = nowFunc
	res, live, err := r.RefreshLive(a.doc)
	if err != nil {
		return res, nil, err
	}
	if res.Changed() {
		if err := a.save(); err != nil {
			return res, live, err
		}
	}
	return res, live, nil
}
