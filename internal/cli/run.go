package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"tickos/internal/board"
	"tickos/internal/kern"
	"tickos/internal/metrics"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the simulated firmware image",
		Long: "Boots a simulated board, registers two blinker tasks that wake on\n" +
			"different tick periods, and starts the scheduler for the given duration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			level, _ := cmd.Flags().GetString("log-level")
			runFor, _ := cmd.Flags().GetDuration("for")

			cfg := kern.Load(cfgPath)
			log := newLogger(level)
			return runImage(cfg, log, runFor)
		},
	}
	cmd.Flags().Duration("for", 5*time.Second, "how long to run before exiting")
	return cmd
}

func runImage(cfg kern.Config, log *slog.Logger, runFor time.Duration) error {
	brd := board.New(log)
	sched := kern.New(cfg, brd)
	brd.Bind(sched)

	if cfg.MetricsAddr != "" {
		exp, err := metrics.NewExporter("tickos", prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		sched.AddObserver(exp)

		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, r); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	if err := sched.Init(); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stacks := [2][]kern.Word{
		make([]kern.Word, cfg.StackWords),
		make([]kern.Word, cfg.StackWords),
	}
	if err := sched.RegisterTask(blinker(sched, log, 3), "blinker-slow", stacks[0]); err != nil {
		return fmt.Errorf("register blinker-slow: %w", err)
	}
	if err := sched.RegisterTask(blinker(sched, log, 1), "blinker-fast", stacks[1]); err != nil {
		return fmt.Errorf("register blinker-fast: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		// Never returns under correct operation.
		errCh <- sched.Start(cfg.TickInterval())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("start scheduler: %w", err)
	case <-time.After(runFor):
	}

	brd.Clock().Stop()
	log.Info("simulation finished",
		"ticks", sched.Ticks(),
		"tasks", sched.TaskCount(),
		"events", len(sched.Events()))
	return nil
}

// blinker builds a task body that logs and then sleeps for period ticks.
func blinker(s *kern.Scheduler, log *slog.Logger, period uint32) kern.EntryFunc {
	return func(params any) {
		name, _ := params.(string)
		for {
			log.Info("blink", "task", name, "tick", s.Ticks())
			if err := s.Wait(period); err != nil {
				log.Error("wait failed", "task", name, "err", err)
				return
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
