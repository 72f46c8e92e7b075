package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wingo/controllers"
	"wingo/routes"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Long: `Connect the store, seed game variants, then run the round scheduler,
the websocket hub and the HTTP API until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(rootOpts)
		},
	}
}

func serve(opts *RootOptions) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedGames(ctx, st, cfg.Games, log); err != nil {
		return err
	}

	comps := controllers.Init(cfg, st, log)
	go comps.Hub.Run(ctx.Done())

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		comps.Scheduler.Start(ctx)
	}()

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.Setup(comps, cfg.CORSOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server running", "port", cfg.Port, "store", cfg.Store, "instance", comps.Scheduler.InstanceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warnw("http shutdown", "err", serr)
	}
	<-schedulerDone
	log.Infow("shutdown complete")
	return err
}
