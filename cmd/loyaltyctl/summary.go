package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/holyloy/komarce/internal/models"
)

var summaryMerchant bool

var summaryCmd = &cobra.Command{
	Use:   "summary <owner-id>",
	Short: "Print a wallet with its reward history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ownerID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx := cmd.Context()
		ownerType := models.OwnerCustomer
		if summaryMerchant {
			ownerType = models.OwnerMerchant
		}

		wallet, err := rt.engine.WalletSummary(ctx, ownerID, ownerType)
		if err != nil {
			return err
		}
		affiliate, err := rt.engine.AffiliateSummary(ctx, ownerID, ownerType)
		if err != nil {
			return err
		}
		ripple, err := rt.engine.RippleRewards(ctx, ownerID, ownerType)
		if err != nil {
			return err
		}

		out := map[string]any{
			"wallet":    wallet,
			"affiliate": affiliate,
			"ripple":    ripple,
		}
		if ownerType == models.OwnerCustomer {
			if out["step_up"], err = rt.engine.StepUpRewards(ctx, ownerID); err != nil {
				return err
			}
			if out["infinity"], err = rt.engine.InfinityCycles(ctx, ownerID); err != nil {
				return err
			}
			if out["vouchers"], err = rt.engine.Vouchers(ctx, ownerID); err != nil {
				return err
			}
		}
		return printJSON(cmd, out)
	},
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryMerchant, "merchant", false, "owner is a merchant")
}
