package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/catalog"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/poller"
	"github.com/dreschagin/mainnet-dashboard/pkg/config"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"github.com/spf13/cobra"
)

// errDemoMode дашборд с такими данными ушел бы в demo режим (код выхода 2)
var errDemoMode = errors.New("demo mode would be forced")

type probeOptions struct {
	cycles  int
	timeout time.Duration
	compact bool
}

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case errors.Is(err, errDemoMode):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "feed-probe:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := probeOptions{}

	cmd := &cobra.Command{
		Use:           "feed-probe",
		Short:         "Poll every dashboard feed once and print the freshness state",
		Long:          "feed-probe loads the feed catalog, polls each feed through the same retry and freshness logic as the server and prints the resulting state as JSON. Exit code 2 means the dashboard would switch to demo data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.cycles, "cycles", 1, "number of polling cycles over all feeds")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "overall probe timeout")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print compact JSON")

	return cmd
}

func runProbe(ctx context.Context, opts probeOptions, stdout, stderr io.Writer) error {
	if opts.cycles < 1 {
		return fmt.Errorf("--cycles must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout занят JSON состоянием, логи уходят в stderr
	log := logger.NewWithWriter(cfg.Server.LogLevel, stderr)

	cat, err := catalog.Load(cfg.Freshness.FeedsConfigPath)
	if err != nil {
		return err
	}

	controller, err := service.NewFreshnessController(service.ControllerConfig{
		MaxCacheAge:          cfg.Freshness.MaxCacheAge,
		MaxConsecutiveErrors: cfg.Freshness.MaxConsecutiveErrors,
		ForceDemoData:        cfg.Freshness.ForceDemoData,
	}, cat.FeedSpecs())
	if err != nil {
		return fmt.Errorf("create freshness controller: %w", err)
	}

	reportUC := usecase.NewReportPollResultUseCase(
		controller,
		service.NewPayloadValidator(int(cfg.Upstream.MaxBodyBytes)),
		usecase.ReportPollResultDeps{},
		log,
	)

	feeds, err := poller.FeedsFromCatalog(cat, poller.SourceOptions{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		MaxBodyBytes:   cfg.Upstream.MaxBodyBytes,
		RateLimitRPS:   cfg.Upstream.RateLimitRPS,
		RateLimitBurst: cfg.Upstream.RateLimitBurst,
		NodeDiskMount:  cfg.Upstream.NodeDiskMount,
	})
	if err != nil {
		return err
	}

	p, err := poller.New(feeds, reportUC, controller, poller.Config{
		MaxRetries:     cfg.Poller.MaxRetries,
		BaseDelay:      cfg.Poller.RetryBaseDelay,
		MaxDelay:       cfg.Poller.RetryMaxDelay,
		RequestTimeout: cfg.Upstream.RequestTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if controller.ForcedByConfig() {
		log.Warn("FORCE_DEMO_DATA is set, skipping upstream polling")
	} else {
		for i := 0; i < opts.cycles; i++ {
			if _, err := p.PollAll(ctx); err != nil {
				return fmt.Errorf("cycle %d: %w", i+1, err)
			}
		}
	}

	state := dto.NewFreshnessStateDTO(controller.State(), controller.ForcedByConfig(), time.Now())

	encoder := json.NewEncoder(stdout)
	if !opts.compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if state.ShouldForceDemoMode {
		return errDemoMode
	}
	return nil
}
