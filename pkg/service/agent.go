package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
	"github.com/theapemachine/a2a-payments/pkg/metrics"
	"github.com/theapemachine/a2a-payments/pkg/payments"
)

/*
AgentServerConfig carries the server's collaborators. Payments, Ledger,
Limiter and Gatherer are optional: a nil Payments leaves the endpoint open,
and a nil Ledger disables the token endpoint.
*/
type AgentServerConfig struct {
	Name      string
	Card      a2a.AgentCard
	Manager   *TaskManager
	Payments  payments.Service
	Ledger    *payments.Ledger
	Limiter   *payments.KeyedLimiter
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Collector
	Heartbeat time.Duration
}

/*
AgentServer hosts the JSON-RPC endpoint and its supporting routes on fiber.
*/
type AgentServer struct {
	app       *fiber.App
	card      a2a.AgentCard
	manager   *TaskManager
	payments  payments.Service
	ledger    *payments.Ledger
	limiter   *payments.KeyedLimiter
	metrics   *metrics.Collector
	heartbeat time.Duration
}

func NewAgentServer(config AgentServerConfig) *AgentServer {
	if config.Manager == nil {
		config.Manager = NewTaskManager()
	}

	srv := &AgentServer{
		app: fiber.New(fiber.Config{
			AppName:      config.Name,
			ServerHeader: "A2A-Payments-Agent",
		}),
		card:      config.Card,
		manager:   config.Manager,
		payments:  config.Payments,
		ledger:    config.Ledger,
		limiter:   config.Limiter,
		metrics:   config.Metrics,
		heartbeat: config.Heartbeat,
	}

	srv.app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))

	srv.app.Get("/health", srv.handleHealth)
	srv.app.Get("/.well-known/agent.json", srv.handleAgentCard)

	if config.Gatherer != nil {
		srv.app.Get("/metrics", fiberadaptor.HTTPHandler(
			promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}),
		))
	}

	if srv.ledger != nil {
		srv.app.Post("/payments/token", srv.handleToken)
	}

	if srv.payments != nil {
		srv.app.Post("/a2a", srv.bearerAuth, srv.handleRPC)
	} else {
		srv.app.Post("/a2a", srv.handleRPC)
	}

	return srv
}

func (srv *AgentServer) App() *fiber.App {
	return srv.app
}

func (srv *AgentServer) Start(addr string) error {
	log.Info("agent listening", "addr", addr, "url", srv.card.URL)
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

/*
Shutdown stops accepting requests, then cancels and drains the tasks still
in flight.
*/
func (srv *AgentServer) Shutdown(ctx context.Context) error {
	err := srv.app.ShutdownWithContext(ctx)

	if closeErr := srv.manager.Close(ctx); err == nil {
		err = closeErr
	}

	return err
}

func (srv *AgentServer) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (srv *AgentServer) handleAgentCard(c fiber.Ctx) error {
	return c.JSON(srv.card)
}

func (srv *AgentServer) handleToken(c fiber.Ctx) error {
	var request struct {
		Subscriber string `json:"subscriber"`
	}

	if err := json.Unmarshal(c.Body(), &request); err != nil || request.Subscriber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			jsonrpc.NewErrorResponse(nil, errors.ErrInvalidParams.WithMessagef("subscriber is required")),
		)
	}

	token, balance, err := srv.ledger.IssueToken(request.Subscriber)

	if err != nil {
		log.Error("failed to issue token", "subscriber", request.Subscriber, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(
			jsonrpc.NewErrorResponse(nil, errors.ErrInternal.WithMessagef("%v", err)),
		)
	}

	return c.JSON(a2a.TokenGrant{
		AccessToken: token,
		Subscriber:  request.Subscriber,
		Balance:     balance,
	})
}
