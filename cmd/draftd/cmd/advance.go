package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/motiongranted/draftengine/internal/core"
)

var advanceOnce bool

var advanceCmd = &cobra.Command{
	Use:   "advance <order-id>",
	Short: "Drive an order forward until it blocks or finishes",
	Long: `Execute phases for one order until it reaches a checkpoint, goes on
hold, or terminates. With --once only a single phase runs.

This is an operator tool; in normal operation the serve process drives
orders in response to API calls.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

func init() {
	rootCmd.AddCommand(advanceCmd)
	advanceCmd.Flags().BoolVar(&advanceOnce, "once", false,
		"execute a single phase instead of running to a stop")
}

func runAdvance(_ *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orderID := core.OrderID(args[0])
	res, err := func() (any, error) {
		if advanceOnce {
			return eng.executor.Advance(ctx, orderID)
		}
		return eng.executor.Run(ctx, orderID)
	}()
	if err != nil {
		return err
	}

	order, err := eng.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"order_id": orderID,
			"status":   order.Status,
			"phase":    order.CurrentPhase,
			"result":   res,
		})
	}
	fmt.Printf("order %s: %s at %s\n", orderID, order.Status, order.CurrentPhase)
	return nil
}
