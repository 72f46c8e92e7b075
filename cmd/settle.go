package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"wingo/controllers"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SettleOptions holds flags for the settle command.
type SettleOptions struct {
	*RootOptions
	RoundID string
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Re-run settlement for one round",
		Long: `Drive one round to settled. A round whose window has ended but was never
locked is claimed first; processing and closed rounds resume where the last
pass stopped; settled rounds are left alone.

Example:
  wingo settle --round 65c9f1d2e4b0a1a2b3c4d5e6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return settleRound(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RoundID, "round", "", "round id (required)")
	_ = cmd.MarkFlagRequired("round")

	return cmd
}

func settleRound(opts *SettleOptions, cmd *cobra.Command) error {
	id, err := primitive.ObjectIDFromHex(opts.RoundID)
	if err != nil {
		return fmt.Errorf("invalid --round %q: %w", opts.RoundID, err)
	}

	cfg, log, err := setup(opts.RootOptions)
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

	comps := controllers.Init(cfg, st, log)
	round, err := comps.Settler.SettleManually(ctx, id, "cli:"+comps.Scheduler.InstanceID())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(round)
}
