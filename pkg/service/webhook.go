package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/push"
)

/*
TaskFetcher looks a task up on the agent that sent the notification.
*/
type TaskFetcher interface {
	GetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error)
}

/*
Notification is one webhook call as the receiver saw it.
*/
type Notification struct {
	TaskID     string
	State      a2a.TaskState
	Token      string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

/*
WebhookServer receives push notifications and confirms each one by fetching
the task it refers to.
*/
type WebhookServer struct {
	app     *fiber.App
	fetcher TaskFetcher
	mu      sync.Mutex
	seen    []Notification
}

func NewWebhookServer(fetcher TaskFetcher) *WebhookServer {
	srv := &WebhookServer{
		app: fiber.New(fiber.Config{
			AppName:      "A2A-Webhook-Server",
			ServerHeader: "A2A-Webhook-Server",
		}),
		fetcher: fetcher,
	}

	srv.app.Use(logger.New())
	srv.app.Get("/", srv.handleRoot)
	srv.app.Post("/webhook", srv.handleWebhook)

	return srv
}

func (srv *WebhookServer) App() *fiber.App {
	return srv.app
}

func (srv *WebhookServer) Start(addr string) error {
	log.Info("webhook listening", "addr", addr)
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *WebhookServer) Shutdown(ctx context.Context) error {
	return srv.app.ShutdownWithContext(ctx)
}

/*
Received returns the notifications seen so far, oldest first.
*/
func (srv *WebhookServer) Received() []Notification {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return append([]Notification(nil), srv.seen...)
}

func (srv *WebhookServer) handleRoot(c fiber.Ctx) error {
	return c.SendString("OK")
}

func (srv *WebhookServer) handleWebhook(c fiber.Ctx) error {
	var body struct {
		TaskID string `json:"taskId"`
	}

	payload := append(json.RawMessage(nil), c.Body()...)

	if err := json.Unmarshal(payload, &body); err != nil || body.TaskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "taskId is required"})
	}

	notification := Notification{
		TaskID:     body.TaskID,
		Token:      c.Get(push.TokenHeader),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	if srv.fetcher != nil {
		task, err := srv.fetcher.GetTask(c.Context(), body.TaskID, 0)

		if err != nil {
			log.Error("failed to fetch notified task", "taskId", body.TaskID, "error", err)
		} else {
			notification.State = task.Status.State
			log.Info("push notification received", "taskId", body.TaskID, "state", task.Status.State)
		}
	}

	srv.mu.Lock()
	srv.seen = append(srv.seen, notification)
	srv.mu.Unlock()

	return c.JSON(fiber.Map{
		"received": true,
		"taskId":   body.TaskID,
		"state":    notification.State,
	})
}
