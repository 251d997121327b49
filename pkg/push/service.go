/*
Package push delivers task status updates to client-registered webhooks.
*/
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-http-utils/headers"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	TokenHeader = "X-A2A-Notification-Token"

	defaultQueueSize = 1000
	defaultTimeout   = 10 * time.Second
)

/*
Service stores one push configuration per task and delivers events through a
single worker, so notifications leave in the order they were queued.
*/
type Service struct {
	mu      sync.RWMutex
	configs map[string]*a2a.TaskPushNotificationConfig
	client  *fasthttp.Client
	queue   chan *notification
	retry   *errors.RetryConfig
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

type notification struct {
	config a2a.TaskPushNotificationConfig
	body   []byte
}

type ServiceOption func(*Service)

func WithRetry(retry *errors.RetryConfig) ServiceOption {
	return func(service *Service) {
		service.retry = retry
	}
}

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.timeout = timeout
		}
	}
}

func WithQueueSize(size int) ServiceOption {
	return func(service *Service) {
		if size > 0 {
			service.queue = make(chan *notification, size)
		}
	}
}

/*
NewService starts the delivery worker. Close stops it after the queue drains.
*/
func NewService(options ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		configs: make(map[string]*a2a.TaskPushNotificationConfig),
		client:  &fasthttp.Client{Name: "a2a-payments-push"},
		queue:   make(chan *notification, defaultQueueSize),
		retry:   errors.DefaultRetryConfig(),
		timeout: defaultTimeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	for _, option := range options {
		option(service)
	}

	go service.worker()

	return service
}

/*
SetConfig registers or replaces the push configuration of a task.
*/
func (service *Service) SetConfig(config a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("push config has no task id")
	}

	if config.PushNotificationConfig.URL == "" {
		return nil, fmt.Errorf("push config for task %s has no url", config.TaskID)
	}

	stored := config

	service.mu.Lock()
	service.configs[config.TaskID] = &stored
	service.mu.Unlock()

	log.Info("push config registered", "taskId", config.TaskID, "url", config.PushNotificationConfig.URL)

	out := stored
	return &out, nil
}

func (service *Service) GetConfig(taskID string) (*a2a.TaskPushNotificationConfig, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()

	config, ok := service.configs[taskID]

	if !ok {
		return nil, false
	}

	out := *config
	return &out, true
}

func (service *Service) DeleteConfig(taskID string) {
	service.mu.Lock()
	delete(service.configs, taskID)
	service.mu.Unlock()
}

/*
Notify queues event for the webhook of its task without blocking. It reports
false when the task has no push configuration, the service is closing, or
the queue is full and the event was dropped.
*/
func (service *Service) Notify(event a2a.Event) bool {
	config, ok := service.GetConfig(event.GetTaskID())

	if !ok {
		return false
	}

	body, err := json.Marshal(event)

	if err != nil {
		log.Error("failed to marshal push event", "taskId", event.GetTaskID(), "error", err)
		return false
	}

	service.mu.RLock()
	defer service.mu.RUnlock()

	if service.closed {
		return false
	}

	select {
	case service.queue <- &notification{config: *config, body: body}:
		return true
	default:
		log.Warn("push queue full, notification dropped", "taskId", event.GetTaskID(), "queued", len(service.queue))
		return false
	}
}

/*
Close stops accepting notifications and waits for the queued ones, bounded by
ctx.
*/
func (service *Service) Close(ctx context.Context) error {
	service.mu.Lock()

	if !service.closed {
		service.closed = true
		close(service.queue)
	}

	service.mu.Unlock()

	select {
	case <-service.done:
		return nil
	case <-ctx.Done():
		service.cancel()
		return ctx.Err()
	}
}

func (service *Service) worker() {
	defer close(service.done)
	defer service.cancel()

	for n := range service.queue {
		err := errors.RetryWithBackoff(service.ctx, service.retry, func() error {
			return service.deliver(n)
		})

		if err != nil {
			log.Error(
				"push notification dropped",
				"taskId", n.config.TaskID,
				"url", n.config.PushNotificationConfig.URL,
				"error", err,
			)
		}
	}
}

func (service *Service) deliver(n *notification) error {
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()

	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	config := n.config.PushNotificationConfig

	req.SetRequestURI(config.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(n.body)

	if auth := config.Authentication; auth != nil && auth.Credentials != "" {
		for _, scheme := range auth.Schemes {
			if strings.EqualFold(scheme, "bearer") {
				req.Header.Set(headers.Authorization, "Bearer "+auth.Credentials)
				break
			}
		}
	}

	if config.Token != "" {
		req.Header.Set(TokenHeader, config.Token)
	}

	if err := service.client.DoTimeout(req, res, service.timeout); err != nil {
		log.Warn("push delivery failed", "taskId", n.config.TaskID, "error", err)
		return err
	}

	if status := res.StatusCode(); status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
		log.Warn("push delivery rejected", "taskId", n.config.TaskID, "status", status)
		return fmt.Errorf("webhook responded with status %d", status)
	}

	log.Debug("push delivered", "taskId", n.config.TaskID)

	return nil
}
