package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/services"
)

var (
	grantAdminPhone  string
	grantMerchant    bool
	grantDescription string
	grantType        string
)

var grantCmd = &cobra.Command{
	Use:   "grant <recipient-id> <points>",
	Short: "Grant reward points on behalf of an administrator",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipientID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid recipient id: %w", err)
		}
		var points int64
		if _, err := fmt.Sscan(args[1], &points); err != nil {
			return fmt.Errorf("invalid points: %w", err)
		}

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		phone := grantAdminPhone
		if phone == "" {
			phone = rt.cfg.AdminBootstrapPhone
		}
		var admin models.Admin
		if err := rt.db.Where("phone = ?", phone).First(&admin).Error; err != nil {
			return fmt.Errorf("admin %q: %w", phone, services.ErrAdminNotFound)
		}

		recipientType := models.OwnerCustomer
		if grantMerchant {
			recipientType = models.OwnerMerchant
		}

		result, err := rt.engine.AdminGeneratePoints(cmd.Context(), services.AdminGrant{
			AdminID:         admin.ID,
			RecipientID:     recipientID,
			RecipientType:   recipientType,
			Points:          points,
			Description:     grantDescription,
			TransactionType: grantType,
		})
		if result != nil {
			if perr := printJSON(cmd, result); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantAdminPhone, "admin-phone", "", "acting admin (default: $ADMIN_BOOTSTRAP_PHONE)")
	grantCmd.Flags().BoolVar(&grantMerchant, "merchant", false, "recipient is a merchant")
	grantCmd.Flags().StringVarP(&grantDescription, "description", "d", "", "audit description (required)")
	grantCmd.Flags().StringVar(&grantType, "type", services.DefaultGrantType, "transaction type recorded in the grant metadata")
	_ = grantCmd.MarkFlagRequired("description")
}
