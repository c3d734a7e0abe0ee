package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/feed"
	"github.com/alanyoungcy/tradecost/internal/orderbook"
	"github.com/alanyoungcy/tradecost/internal/service"
)

func newEstimateCmd(configPath *string) *cobra.Command {
	var (
		bookPath string
		qty      float64
		tier     string
		vol      float64
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of one order against a recorded book",
		Long: "estimate replays a file of feed messages, one JSON object per line, " +
			"into an order book and prints the cost estimate for a market buy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			f, err := os.Open(bookPath)
			if err != nil {
				return fmt.Errorf("estimate: %w", err)
			}
			defer f.Close()

			book := orderbook.New(cfg.Feed.Symbol, cfg.Feed.Exchange, nil, logger)
			n, err := feed.Replay(cmd.Context(), f, book, nil, domain.UpdateKind(cfg.Feed.DefaultKind), logger)
			if err != nil {
				return fmt.Errorf("estimate: replay %s: %w", bookPath, err)
			}
			if n == 0 {
				return fmt.Errorf("estimate: %s: %w", bookPath, domain.ErrEmptyBook)
			}

			req := cfg.EstimateRequest()
			if cmd.Flags().Changed("quantity") {
				req.QuantityUSD = qty
			}
			if cmd.Flags().Changed("tier") {
				req.FeeTier = tier
			}
			if cmd.Flags().Changed("volatility") {
				req.Volatility = vol
			}
			if !finiteNonNegative(req.QuantityUSD) || !finiteNonNegative(req.Volatility) {
				return fmt.Errorf("estimate: quantity and volatility must be finite and >= 0: %w", domain.ErrInvalidInput)
			}

			rc := service.NewRecomputer(service.RecomputerConfig{}, service.RecomputerDeps{
				Book: book,
				Aggregator: cost.NewAggregator(
					cost.NewFeeSchedule(cfg.Fees.Tiers, cfg.Fees.DefaultTakerRate, logger),
					cost.NewImpactModel(cfg.Impact.Coefficient, cfg.Impact.DailyVolumeUSD, cfg.Impact.FallbackDailyVolumeUSD, logger),
					logger,
				),
			}, req, logger)
			est, ok := rc.Recompute(cmd.Context(), domain.TriggerInputChange)
			if !ok {
				return errors.New("estimate: recompute produced no estimate")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		},
	}
	cmd.Flags().StringVarP(&bookPath, "book", "b", "", "file of feed messages to replay")
	cmd.Flags().Float64VarP(&qty, "quantity", "q", 0, "order size in quote currency")
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "fee tier")
	cmd.Flags().Float64Var(&vol, "volatility", 0, "volatility as a fraction")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
