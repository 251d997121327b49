package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/service"
	"golang.org/x/sync/errgroup"
)

var (
	webhookPortFlag  int
	webhookAgentFlag string

	webhookCmd = &cobra.Command{
		Use:   "webhook",
		Short: "Run the push notification receiver",
		Long:  longWebhook,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()

			if err != nil {
				return err
			}

			port, agentURL := cfg.Webhook.Port, cfg.Webhook.AgentURL

			if cmd.Flags().Changed("port") {
				port = webhookPortFlag
			}

			if cmd.Flags().Changed("agent") {
				agentURL = webhookAgentFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := service.NewWebhookServer(
				a2a.NewClient(agentURL, a2a.WithBearerToken(os.Getenv("A2A_TOKEN"))),
			)

			group, groupCtx := errgroup.WithContext(ctx)

			group.Go(func() error {
				return srv.Start(fmt.Sprintf(":%d", port))
			})

			group.Go(func() error {
				<-groupCtx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				log.Info("shutting down webhook receiver", "received", len(srv.Received()))

				return srv.Shutdown(shutdownCtx)
			})

			return group.Wait()
		},
	}
)

func init() {
	rootCmd.AddCommand(webhookCmd)

	webhookCmd.Flags().IntVarP(&webhookPortFlag, "port", "p", 8001, "Port to listen on")
	webhookCmd.Flags().StringVarP(&webhookAgentFlag, "agent", "a", "", "JSON-RPC endpoint of the agent to confirm tasks with")
}

var longWebhook = `
Receive push notifications on POST /webhook and confirm each one by calling
tasks/get on the agent that sent it. Set A2A_TOKEN when the agent requires a
bearer token.

Examples:
  # Listen on the configured port.
  a2a-payments webhook

  # Listen on port 9001 for an agent on port 9000.
  a2a-payments webhook --port 9001 --agent http://localhost:9000/a2a
`
