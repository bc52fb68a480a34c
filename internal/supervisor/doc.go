// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

/*
Package supervisor runs the long-lived parts of `fieldfm serve` under a
suture v4 supervisor tree.

The tree has two layers so a failing model job never takes the API down:

	RootSupervisor ("fieldfm")
	├── ModelSupervisor ("model-layer")
	│   ├── ReloadService  (if server.reload_interval > 0)
	│   └── RetrainService (if server.retrain_interval > 0)
	└── APISupervisor ("api-layer")
	    └── APIService

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog into the zerolog-backed slog.Logger from
internal/logging.

Usage:

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewAPIService(srv, services.APIServiceConfig{
	    Addr:         srv.Addr,
	    DrainTimeout: cfg.Server.ShutdownTimeout,
	}, logging.Logger()))
	tree.AddModelService(reload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tree.Serve(ctx)
*/
package supervisor
