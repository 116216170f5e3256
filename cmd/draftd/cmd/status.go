package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/motiongranted/draftengine/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Show an order's phase, status and pending checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	id := core.OrderID(args[0])
	order, err := eng.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	pending, err := eng.store.PendingCheckpoints(ctx, id)
	if err != nil {
		return err
	}

	if jsonOut {
		views := make([]map[string]any, 0, len(pending))
		for _, cp := range pending {
			views = append(views, map[string]any{
				"id":      cp.ID,
				"type":    cp.Type,
				"phase":   cp.Phase,
				"message": cp.Message,
			})
		}
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"order_id":            order.ID,
			"tier":                order.Tier,
			"motion_type":         order.MotionType,
			"status":              order.Status,
			"phase":               order.CurrentPhase,
			"revision_count":      order.RevisionCount,
			"cost_usd":            order.CostUSD,
			"disclosure":          order.Disclosure,
			"pending_checkpoints": views,
		})
	}

	fmt.Printf("order %s\n", order.ID)
	fmt.Printf("  tier:      %s (%s)\n", order.Tier, order.MotionType)
	fmt.Printf("  status:    %s\n", order.Status)
	fmt.Printf("  phase:     %s\n", order.CurrentPhase)
	fmt.Printf("  revisions: %d\n", order.RevisionCount)
	fmt.Printf("  spend:     $%.2f\n", order.CostUSD)
	if order.Disclosure != "" {
		fmt.Printf("  disclosure: %s\n", order.Disclosure)
	}
	for _, cp := range pending {
		fmt.Printf("  pending %s checkpoint %s at %s: %s\n", cp.Type, cp.ID, cp.Phase, cp.Message)
	}
	return nil
}
