package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured game variants",
		Long: `Write every game variant from GAMES_FILE (or the built-in list) to the
store. Existing variants keep their id and creation time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()
			return seedGames(ctx, st, cfg.Games, log)
		},
	}
}
