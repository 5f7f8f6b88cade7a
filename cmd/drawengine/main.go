package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Slowpokess/euro-lottery/internal/config"
	"github.com/Slowpokess/euro-lottery/internal/draw"
	"github.com/Slowpokess/euro-lottery/internal/engine"
	"github.com/Slowpokess/euro-lottery/internal/events"
	"github.com/Slowpokess/euro-lottery/internal/logger"
	"github.com/Slowpokess/euro-lottery/internal/rng"
	"github.com/Slowpokess/euro-lottery/internal/schedule"
	"github.com/Slowpokess/euro-lottery/internal/store"
	"github.com/Slowpokess/euro-lottery/internal/verify"
)

var (
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:   "drawengine",
		Short: "Verifiable lottery draw engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger.Init(&logger.Options{Level: level, TimeFormat: time.RFC3339})
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logs")

	root.AddCommand(conductCmd(), verifyCmd(), proveCmd(), nextDrawCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func conductCmd() *cobra.Command {
	var specPath, ticketsPath string
	cmd := &cobra.Command{
		Use:   "conduct",
		Short: "Execute a scheduled draw",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var spec draw.Spec
			if err := readJSON(specPath, &spec); err != nil {
				return fmt.Errorf("read draw spec: %w", err)
			}

			var tickets []draw.TicketSelection
			if ticketsPath != "" {
				if err := readJSON(ticketsPath, &tickets); err != nil {
					return fmt.Errorf("read tickets: %w", err)
				}
			}

			state, err := app.engine.ConductDraw(cmd.Context(), spec, tickets)
			if err != nil {
				return err
			}

			assignments, err := app.store.ListAssignments(spec.Key())
			if err != nil {
				return err
			}
			results, err := app.store.ListTierResults(spec.Key())
			if err != nil {
				return err
			}

			return printJSON(map[string]any{
				"draw":         state,
				"winners":      assignments,
				"tier_results": results,
			})
		},
	}
	cmd.Flags().StringVar(&specPath, "spec", "", "Path to the draw spec JSON file")
	cmd.Flags().StringVar(&ticketsPath, "tickets", "", "Path to the ticket selections JSON file")
	cmd.MarkFlagRequired("spec")
	return cmd
}

func verifyCmd() *cobra.Command {
	var lotteryID string
	var drawNumber int64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify a completed draw against its sealed record",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.engine.VerifyDraw(draw.Spec{LotteryID: lotteryID, DrawNumber: drawNumber})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&lotteryID, "lottery", "", "Lottery id")
	cmd.Flags().Int64Var(&drawNumber, "draw", 0, "Draw number")
	cmd.MarkFlagRequired("lottery")
	cmd.MarkFlagRequired("draw")
	return cmd
}

func proveCmd() *cobra.Command {
	var lotteryID string
	var drawNumber int64
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Print the public proof for a completed draw",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			proof, err := app.engine.PublicProof(draw.Spec{LotteryID: lotteryID, DrawNumber: drawNumber})
			if err != nil {
				return err
			}
			return printJSON(proof)
		},
	}
	cmd.Flags().StringVar(&lotteryID, "lottery", "", "Lottery id")
	cmd.Flags().Int64Var(&drawNumber, "draw", 0, "Draw number")
	cmd.MarkFlagRequired("lottery")
	cmd.MarkFlagRequired("draw")
	return cmd
}

func nextDrawCmd() *cobra.Command {
	var lotteryID, lastSpecPath string
	cmd := &cobra.Command{
		Use:   "next-draw",
		Short: "Plan and schedule the next draw for a lottery",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			lottery, err := app.cfg.Lottery(lotteryID)
			if err != nil {
				return err
			}

			var lastSpec *draw.Spec
			var lastResults []*draw.TierResult
			if lastSpecPath != "" {
				lastSpec = &draw.Spec{}
				if err := readJSON(lastSpecPath, lastSpec); err != nil {
					return fmt.Errorf("read last draw spec: %w", err)
				}
				lastResults, err = app.store.ListTierResults(lastSpec.Key())
				if err != nil {
					return err
				}
			}

			spec, err := schedule.NewPlanner().NextDraw(lotteryID, lottery, lastSpec, lastResults)
			if err != nil {
				return err
			}
			if _, err := app.engine.Schedule(spec); err != nil {
				return err
			}
			return printJSON(spec)
		},
	}
	cmd.Flags().StringVar(&lotteryID, "lottery", "", "Lottery id")
	cmd.Flags().StringVar(&lastSpecPath, "last-spec", "", "Path to the previous draw's spec JSON (for rollover)")
	cmd.MarkFlagRequired("lottery")
	return cmd
}

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg     *config.Config
	store   store.DrawStore
	emitter *events.Emitter
	engine  *engine.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var drawStore store.DrawStore
	switch cfg.Engine.Storage.Type {
	case "memory":
		drawStore = store.NewMemoryStore()
	default:
		drawStore, err = store.NewBadgerStore(cfg.Engine.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	source, err := rng.New(cfg.Engine.RNG)
	if err != nil {
		drawStore.Close()
		return nil, err
	}

	tiers := make(map[string][]draw.PrizeTier, len(cfg.Engine.Lotteries))
	for id, lottery := range cfg.Engine.Lotteries {
		parsed, err := lottery.Tiers()
		if err != nil {
			drawStore.Close()
			return nil, fmt.Errorf("lottery %s: %w", id, err)
		}
		tiers[id] = parsed
	}

	var emitter *events.Emitter
	if cfg.Engine.NATS.URL != "" {
		emitter, err = events.NewEmitter(cfg.Engine.NATS.URL, cfg.Engine.NATS.SubjectPrefix)
		if err != nil {
			slog.Warn("NATS unavailable, events disabled", "err", err)
			emitter = nil
		}
	}

	engineCfg := engine.Config{
		Store:  drawStore,
		Source: source,
		Verifier: verify.New(verify.Config{
			Secret:  cfg.Engine.Verification.SecretKey,
			BaseURL: cfg.Engine.Verification.BaseURL,
		}),
		Tiers:   tiers,
		Workers: cfg.Engine.Workers,
	}
	if emitter != nil {
		engineCfg.Emitter = emitter
	}

	return &app{
		cfg:     cfg,
		store:   drawStore,
		emitter: emitter,
		engine:  engine.New(engineCfg),
	}, nil
}

func (a *app) Close() {
	if a.emitter != nil {
		a.emitter.Close()
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("close storage failed", "err", err)
	}
}

func readJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, value)
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
