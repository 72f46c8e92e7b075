package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"wingo/config"
	"wingo/db"
	"wingo/models"
	"wingo/store"
	"wingo/utils/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the wingo CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wingo",
		Short: "WinGo round scheduler and settlement service",
		Long: `Runs fixed-duration betting rounds for every configured game variant:
opens each window on time, locks it when it ends, draws the outcome,
scores every bet and credits winners exactly once.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewWindowCommand())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by store-backed commands.
func setup(opts *RootOptions) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log, err := logger.New(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openStore connects the configured store. The returned close func is never nil.
func openStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (store.RoundStore, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warnw("using in-memory store; state is lost on exit")
		return store.NewMemory(), func() {}, nil
	}

	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	log.Infow("connected to MongoDB", "database", cfg.MongoDatabase)
	closeFn := func() {
		if err := db.Disconnect(client); err != nil {
			log.Warnw("mongodb disconnect", "err", err)
		}
	}

	st := store.NewMongo(client.Database(cfg.MongoDatabase))
	if err := st.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return st, closeFn, nil
}

// seedGames upserts every configured variant.
func seedGames(ctx context.Context, st store.RoundStore, games []models.Game, log *zap.SugaredLogger) error {
	now := time.Now().UTC()
	for _, g := range games {
		g.CreatedAt, g.UpdatedAt = now, now
		if err := st.UpsertGame(ctx, g); err != nil {
			return err
		}
		log.Infow("game seeded", "game", g.GameCode, "name", g.Name, "duration", g.Duration(), "active", g.IsActive)
	}
	return nil
}
