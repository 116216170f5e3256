package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/motiongranted/draftengine/internal/core"
)

var (
	newOrderID string
	newTier    string
	newMotion  string
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new motion order",
	RunE:  runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&newOrderID, "id", "",
		"order ID (default: generated)")
	newCmd.Flags().StringVar(&newTier, "tier", "",
		"complexity tier: A, B, C or D (required)")
	newCmd.Flags().StringVar(&newMotion, "motion", "standard",
		"motion type: standard or msj")
	_ = newCmd.MarkFlagRequired("tier")
}

func runNew(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	tier, err := core.ParseTier(newTier)
	if err != nil {
		return err
	}
	motion := core.MotionType(newMotion)
	if motion != core.MotionTypeStandard && motion != core.MotionTypeMSJ {
		return fmt.Errorf("invalid motion type: %s", newMotion)
	}

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	id := core.OrderID(newOrderID)
	if id == "" {
		id = core.OrderID(uuid.NewString())
	}

	order := core.NewOrder(id, tier, motion)
	if err := eng.store.CreateOrder(context.Background(), order); err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"order_id":    order.ID,
			"tier":        order.Tier,
			"motion_type": order.MotionType,
			"status":      order.Status,
		})
	}
	fmt.Printf("created order %s (tier %s, %s)\n", order.ID, order.Tier, order.MotionType)
	return nil
}
