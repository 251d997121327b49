package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-payments/pkg/agent"
	"github.com/theapemachine/a2a-payments/pkg/config"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/metrics"
	"github.com/theapemachine/a2a-payments/pkg/payments"
	"github.com/theapemachine/a2a-payments/pkg/push"
	"github.com/theapemachine/a2a-payments/pkg/service"
	"github.com/theapemachine/a2a-payments/pkg/skills"
	"github.com/theapemachine/a2a-payments/pkg/stores"
	"github.com/theapemachine/a2a-payments/pkg/stores/s3"
	"golang.org/x/sync/errgroup"
)

var (
	portFlag  int
	asyncFlag bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the A2A agent",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()

			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = portFlag
			}

			if cmd.Flags().Changed("async") {
				cfg.Server.AsyncExecution = asyncFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 8000, "Port to serve on")
	serveCmd.Flags().BoolVar(&asyncFlag, "async", false, "Return from message/send once the task is submitted")
}

/*
serve assembles the host from cfg and runs it until ctx is done, then shuts
it down within the configured timeout.
*/
func serve(ctx context.Context, cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.New(registry)

	storeOptions := []stores.TaskStoreOption{}

	if cfg.Archive.Enabled {
		archive, err := s3.NewStore(ctx, s3.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})

		if err != nil {
			return fmt.Errorf("failed to open task archive: %w", err)
		}

		storeOptions = append(storeOptions, stores.WithArchive(archive))
	}

	pushService := push.NewService(
		push.WithTimeout(cfg.Push.Timeout),
		push.WithRetry(&errors.RetryConfig{
			MaxAttempts:   cfg.Push.MaxAttempts,
			InitialDelay:  cfg.Push.InitialDelay,
			MaxDelay:      time.Minute,
			BackoffFactor: 2.0,
		}),
	)

	executor := agent.NewExecutor(
		agent.WithHandlerTimeout(cfg.Server.HandlerTimeout),
		agent.WithRegistry(skills.NewRegistry(
			skills.WithStreaming(cfg.Server.StreamTicks, cfg.Server.StreamInterval),
			skills.WithPushDelay(cfg.Server.PushDelay),
		)),
	)

	managerOptions := []service.TaskManagerOption{
		service.WithExecutor(executor),
		service.WithStore(stores.NewTaskStore(storeOptions...)),
		service.WithPush(pushService),
		service.WithMetrics(collector),
		service.WithAsyncExecution(cfg.Server.AsyncExecution),
	}

	serverConfig := service.AgentServerConfig{
		Name: cfg.Server.Name,
		Card: service.NewAgentCard(service.CardOptions{
			Name:     cfg.Server.Name,
			URL:      cfg.Server.URL(),
			AgentID:  cfg.Payments.AgentID,
			PlanID:   cfg.Payments.PlanID,
			Payments: cfg.Payments.Enabled,
		}),
		Gatherer:  registry,
		Metrics:   collector,
		Heartbeat: cfg.Server.Heartbeat,
	}

	if cfg.Payments.Enabled {
		ledger, err := payments.NewLedger(payments.LedgerConfig{
			SigningKey:     []byte(cfg.Payments.APIKey),
			PlanID:         cfg.Payments.PlanID,
			AgentID:        cfg.Payments.AgentID,
			InitialCredits: cfg.Payments.InitialCredits,
			TokenTTL:       cfg.Payments.TokenTTL,
		})

		if err != nil {
			return err
		}

		managerOptions = append(managerOptions, service.WithPayments(ledger))
		serverConfig.Payments = ledger
		serverConfig.Ledger = ledger
		serverConfig.Limiter = payments.NewKeyedLimiter(
			int64(cfg.Payments.RateLimit), cfg.Payments.RateInterval,
		)
	}

	serverConfig.Manager = service.NewTaskManager(managerOptions...)
	srv := service.NewAgentServer(serverConfig)

	log.Info(
		"starting agent",
		"name", cfg.Server.Name,
		"url", cfg.Server.URL(),
		"payments", cfg.Payments.Enabled,
		"archive", cfg.Archive.Enabled,
		"async", cfg.Server.AsyncExecution,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start(cfg.Server.Addr())
	})

	group.Go(func() error {
		<-groupCtx.Done()

		log.Info("shutting down agent")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		if closeErr := pushService.Close(shutdownCtx); err == nil {
			err = closeErr
		}

		return err
	})

	return group.Wait()
}

var longServe = `
Serve the A2A agent: the JSON-RPC endpoint on /a2a, the agent card, health,
metrics and, with payments enabled, the development token endpoint.

Examples:
  # Serve on the configured port.
  a2a-payments serve

  # Serve on port 9000 and return from message/send without waiting.
  a2a-payments serve --port 9000 --async

  # Require bearer tokens and charge credits.
  PAYMENTS_ENABLED=true PAYMENTS_API_KEY=secret a2a-payments serve
`
