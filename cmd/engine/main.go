package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mt5crs/gateway/internal/breaker"
	"github.com/mt5crs/gateway/internal/config"
	"github.com/mt5crs/gateway/internal/engine"
	"github.com/mt5crs/gateway/internal/gateway"
	"github.com/mt5crs/gateway/internal/journal"
	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/report"
	"github.com/mt5crs/gateway/internal/ticks"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to YAML config (defaults apply if empty)")
		mock          = flag.Bool("mock", false, "use the mock tick generator instead of the live feed")
		maxIterations = flag.Int("max-iterations", -1, "override engine.max_iterations (-1 = use config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	if *mock {
		cfg.Mock.Enabled = true
	}
	if *maxIterations >= 0 {
		cfg.Engine.MaxIterations = *maxIterations
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		http.Handle("/metrics", observ.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			observ.Log("metrics_server_warn", map[string]any{"error": err.Error()})
		}
	}()

	brk := breaker.New(cfg.Breaker.SentinelPath)
	startedAt := time.Now()

	stats, err := run(ctx, cfg, brk)
	outcome := report.OutcomeCompleted
	if err != nil && !errors.Is(err, context.Canceled) {
		outcome = report.OutcomeFatal
		// Uncertain exit: default to ENGAGED so nothing trades until a
		// human looks at the report.
		brk.Engage("fatal_exit", map[string]any{"error": err.Error()})
	}

	rep := report.Build(stats, brk.Status(), startedAt, outcome, err)
	if werr := report.Write(cfg.ReportPath, rep); werr != nil {
		observ.Log("run_report_write_warn", map[string]any{"error": werr.Error()})
	}

	if outcome == report.OutcomeFatal {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Root, brk *breaker.Breaker) (engine.Snapshot, error) {
	var stats engine.Snapshot

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return stats, fmt.Errorf("open journal: %w", err)
	}

	// Startup reconciliation: any order sent but never resolved means a
	// prior run died mid-flight. Engage and let an operator decide.
	dangling, err := jrnl.Reconcile()
	if err != nil {
		return stats, fmt.Errorf("reconcile journal: %w", err)
	}
	if len(dangling) > 0 {
		uuids := make([]string, 0, len(dangling))
		for _, e := range dangling {
			uuids = append(uuids, e.UUID)
		}
		brk.Engage("unreconciled_orders", map[string]any{"uuids": uuids})
		observ.Log("reconcile_dangling_orders", map[string]any{"count": len(dangling)})
	}

	timeout := time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond
	client, err := gateway.NewClient(ctx, cfg.Gateway.ReqEndpoint, timeout)
	if err != nil {
		return stats, fmt.Errorf("gateway client: %w", err)
	}
	defer client.Close()

	var src ticks.Source
	if cfg.Mock.Enabled {
		src = ticks.NewMockSource(cfg.Engine.Symbol, cfg.Mock.Ticks, cfg.Mock.RatePerSec, cfg.Mock.BasePrice, cfg.Mock.SpreadPoints)
		observ.Log("tick_source_selected", map[string]any{"source": "mock", "ticks": cfg.Mock.Ticks})
	} else {
		sub, err := gateway.NewSubscriber(ctx, cfg.Gateway.SubEndpoint)
		if err != nil {
			return stats, fmt.Errorf("subscribe %s: %w", cfg.Gateway.SubEndpoint, err)
		}
		defer sub.Close()
		src = ticks.NewSubSource(sub)
		observ.Log("tick_source_selected", map[string]any{"source": "live", "endpoint": cfg.Gateway.SubEndpoint})
	}

	eng := engine.New(engine.Config{
		Volume:          cfg.Engine.Volume,
		MaxIterations:   cfg.Engine.MaxIterations,
		OrderRatePerSec: cfg.Engine.OrderRatePerSec,
	}, brk, src, engine.NewSpreadStrategy(cfg.Engine.MaxSpread), client, jrnl)

	// Transition watcher: logs breaker edges while the engine runs.
	mon := breaker.NewMonitor(brk)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go watchBreaker(watchCtx, mon)

	err = eng.Run(ctx)
	stats = eng.Stats()
	return stats, err
}

func watchBreaker(ctx context.Context, mon *breaker.Monitor) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if state, changed := mon.CheckStateChange(); changed {
				observ.Log("breaker_state_change", map[string]any{"state": string(state)})
			}
		}
	}
}
