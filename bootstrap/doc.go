// Package bootstrap provides application initialization and lifecycle management.
// It resolves the configured application from the registry, binds the
// listener and serves until a shutdown signal arrives.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer app.Shutdown()
//
//	if err := app.Start(ctx); err != nil {
//	    return err
//	}
//
//	// Wait for shutdown signal
//	return app.WaitForShutdown(ctx)
package bootstrap
