package service

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/agent"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/metrics"
	"github.com/theapemachine/a2a-payments/pkg/payments"
	"github.com/theapemachine/a2a-payments/pkg/push"
	"github.com/theapemachine/a2a-payments/pkg/service/sse"
	"github.com/theapemachine/a2a-payments/pkg/skills"
	"github.com/theapemachine/a2a-payments/pkg/stores"
)

/*
TaskManager owns the host side of the task lifecycle: it builds the request
context for each inbound message, hands it to the executor together with a
per-task bus, and answers task queries from the store.

Executions run on the manager's own context rather than the caller's, so a
client that disconnects does not abort its task. Only CancelTask or Close
does.
*/
type TaskManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	executor *agent.Executor
	store    *stores.TaskStore
	push     *push.Service
	payments payments.Service
	metrics  *metrics.Collector
	async    bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	brokers  map[string]*sse.Broker
}

type TaskManagerOption func(*TaskManager)

func WithExecutor(executor *agent.Executor) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.executor = executor
	}
}

func WithStore(store *stores.TaskStore) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.store = store
	}
}

func WithPush(service *push.Service) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.push = service
	}
}

/*
WithPayments enables credit burning for finished tasks.
*/
func WithPayments(service payments.Service) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.payments = service
	}
}

func WithMetrics(collector *metrics.Collector) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.metrics = collector
	}
}

/*
WithAsyncExecution makes message/send return as soon as the task is
submitted, unless the request asks to block.
*/
func WithAsyncExecution(async bool) TaskManagerOption {
	return func(manager *TaskManager) {
		manager.async = async
	}
}

func NewTaskManager(options ...TaskManagerOption) *TaskManager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &TaskManager{
		ctx:     ctx,
		cancel:  cancel,
		brokers: make(map[string]*sse.Broker),
	}

	for _, option := range options {
		option(manager)
	}

	if manager.executor == nil {
		manager.executor = agent.NewExecutor()
	}

	if manager.store == nil {
		manager.store = stores.NewTaskStore()
	}

	return manager
}

/*
SendMessage runs the message to completion when blocking, or until the
submitted task has been recorded otherwise, and returns the task snapshot.
*/
func (manager *TaskManager) SendMessage(
	ctx context.Context, params a2a.MessageSendParams, metadata map[string]any,
) (*a2a.Task, error) {
	reqCtx, err := manager.prepare(ctx, params, metadata)

	if err != nil {
		return nil, err
	}

	bus := manager.newBus(reqCtx)
	blocking := !manager.async

	if params.Configuration != nil && params.Configuration.Blocking != nil {
		blocking = *params.Configuration.Blocking
	}

	done := manager.execute(reqCtx, bus)

	if blocking {
		err = <-done
	} else {
		select {
		case <-bus.started:
		case err = <-done:
		}
	}

	if err != nil {
		return nil, toRPCError(err)
	}

	return manager.store.Get(ctx, reqCtx.TaskID, historyLength(params.Configuration))
}

/*
Stream starts the message and returns its events. The subscription is taken
before execution starts, so no event is missed. The returned function ends
the subscription.
*/
func (manager *TaskManager) Stream(
	ctx context.Context, params a2a.MessageSendParams, metadata map[string]any,
) (<-chan a2a.Event, func(), error) {
	reqCtx, err := manager.prepare(ctx, params, metadata)

	if err != nil {
		return nil, nil, err
	}

	bus := manager.newBus(reqCtx)
	events, unsubscribe := bus.broker.Subscribe()

	manager.execute(reqCtx, bus)

	return events, unsubscribe, nil
}

func (manager *TaskManager) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	length := 0

	if params.HistoryLength != nil {
		length = *params.HistoryLength
	}

	task, err := manager.store.Get(ctx, params.ID, length)

	if err != nil {
		return nil, toRPCError(err)
	}

	return task, nil
}

/*
CancelTask aborts a running task. Tasks that are stored but have nothing in
flight cannot be canceled.
*/
func (manager *TaskManager) CancelTask(ctx context.Context, params a2a.TaskIDParams) (*a2a.Task, error) {
	task, err := manager.store.Get(ctx, params.ID, 0)

	if err != nil {
		return nil, toRPCError(err)
	}

	if task.Status.State.Terminal() || !manager.executor.Running(params.ID) {
		return nil, errors.ErrTaskNotCancelable.WithMessagef(
			"task %s is %s and cannot be canceled", params.ID, task.Status.State,
		)
	}

	if err := manager.executor.Cancel(ctx, params.ID); err != nil {
		return nil, toRPCError(err)
	}

	return manager.store.Get(ctx, params.ID, 0)
}

func (manager *TaskManager) SetPushConfig(
	ctx context.Context, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, error) {
	if manager.push == nil {
		return nil, errors.ErrPushNotificationNotSupported
	}

	if _, err := manager.store.Get(ctx, config.TaskID, 1); err != nil {
		return nil, toRPCError(err)
	}

	stored, err := manager.push.SetConfig(config)

	if err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("%v", err)
	}

	return stored, nil
}

func (manager *TaskManager) GetPushConfig(
	ctx context.Context, params a2a.TaskIDParams,
) (*a2a.TaskPushNotificationConfig, error) {
	if manager.push == nil {
		return nil, errors.ErrPushNotificationNotSupported
	}

	if _, err := manager.store.Get(ctx, params.ID, 1); err != nil {
		return nil, toRPCError(err)
	}

	config, ok := manager.push.GetConfig(params.ID)

	if !ok {
		return nil, errors.ErrPushNotificationConfigNotFound
	}

	return config, nil
}

/*
Close cancels everything still in flight and waits, bounded by ctx, for the
executions and any push continuations they handed off to publish their final
events.
*/
func (manager *TaskManager) Close(ctx context.Context) error {
	manager.cancel()

	done := make(chan struct{})

	go func() {
		manager.wg.Wait()
		manager.executor.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
prepare resolves the message against the store: a message naming a known
task continues it, anything else starts a new one.
*/
func (manager *TaskManager) prepare(
	ctx context.Context, params a2a.MessageSendParams, metadata map[string]any,
) (*agent.RequestContext, error) {
	var stored *a2a.Task

	if params.Message.TaskID != "" {
		task, err := manager.store.Get(ctx, params.Message.TaskID, 0)

		switch {
		case err == nil:
			stored = task
		case !stderrors.Is(err, stores.ErrNotFound):
			return nil, toRPCError(err)
		}
	}

	if stored != nil {
		if stored.Status.State.Terminal() {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"task %s is already %s", stored.ID, stored.Status.State,
			)
		}

		if manager.executor.Running(stored.ID) {
			return nil, errors.ErrInvalidParams.WithMessagef("task %s is still running", stored.ID)
		}
	}

	merged := make(map[string]any, len(params.Metadata)+len(metadata))

	for k, v := range params.Metadata {
		merged[k] = v
	}

	for k, v := range metadata {
		merged[k] = v
	}

	reqCtx := agent.NewRequestContext(params.Message, stored, merged)

	if stored != nil {
		if err := manager.store.AppendMessage(stored.ID, *reqCtx.Message); err != nil {
			return nil, toRPCError(err)
		}
	}

	if params.Configuration != nil && params.Configuration.PushNotificationConfig != nil {
		if manager.push == nil {
			return nil, errors.ErrPushNotificationNotSupported
		}

		if _, err := manager.push.SetConfig(a2a.TaskPushNotificationConfig{
			TaskID:                 reqCtx.TaskID,
			PushNotificationConfig: *params.Configuration.PushNotificationConfig,
		}); err != nil {
			return nil, errors.ErrInvalidParams.WithMessagef("%v", err)
		}
	}

	return reqCtx, nil
}

/*
execute runs the executor on a tracked goroutine. The returned channel
yields the executor's error once it returns.
*/
func (manager *TaskManager) execute(reqCtx *agent.RequestContext, bus *taskBus) <-chan error {
	done := make(chan error, 1)

	manager.wg.Add(1)

	go func() {
		defer manager.wg.Done()

		err := manager.executor.Execute(manager.ctx, reqCtx, bus)

		if err != nil {
			log.Error("execution did not complete", "taskId", reqCtx.TaskID, "error", err)
			bus.abort()
		}

		done <- err
	}()

	return done
}

func (manager *TaskManager) newBus(reqCtx *agent.RequestContext) *taskBus {
	broker := sse.NewBroker(reqCtx.TaskID)

	manager.mu.Lock()

	if previous, ok := manager.brokers[reqCtx.TaskID]; ok {
		previous.Close()
	}

	manager.brokers[reqCtx.TaskID] = broker
	manager.mu.Unlock()

	return &taskBus{
		manager: manager,
		taskID:  reqCtx.TaskID,
		token:   reqCtx.BearerToken(),
		broker:  broker,
		started: make(chan struct{}),
	}
}

func (manager *TaskManager) releaseBroker(taskID string, broker *sse.Broker) {
	log.Debug("releasing stream subscribers", "taskId", taskID, "subscribers", broker.Subscribers())
	broker.Close()

	manager.mu.Lock()

	if manager.brokers[taskID] == broker {
		delete(manager.brokers, taskID)
	}

	manager.mu.Unlock()
}

/*
taskBus applies the events of one execution in order: store, push, stream
subscribers, metrics, and on the final event the credit burn and archive.
*/
type taskBus struct {
	manager     *TaskManager
	taskID      string
	token       string
	broker      *sse.Broker
	mu          sync.Mutex
	closed      bool
	started     chan struct{}
	startedOnce sync.Once
	finishOnce  sync.Once
}

func (bus *taskBus) Publish(ctx context.Context, event a2a.Event) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return agent.ErrBusClosed
	}

	manager := bus.manager

	switch e := event.(type) {
	case *a2a.Task:
		manager.store.Put(e)
		manager.metrics.StoredTasks(manager.store.Len())
	case *a2a.TaskStatusUpdateEvent:
		if err := manager.store.ApplyStatus(e); err != nil {
			log.Warn("status update for unknown task", "taskId", e.TaskID, "error", err)
		}

		if manager.push != nil && manager.push.Notify(e) {
			manager.metrics.PushQueued()
		}
	case *a2a.Message:
		if err := manager.store.AppendMessage(e.TaskID, *e); err != nil {
			log.Warn("message for unknown task", "taskId", e.TaskID, "error", err)
		}
	}

	bus.broker.Broadcast(event)
	manager.metrics.EventPublished(event.GetKind())
	bus.startedOnce.Do(func() { close(bus.started) })

	if update, ok := event.(*a2a.TaskStatusUpdateEvent); ok && update.Final {
		bus.closed = true
		bus.settle(ctx, update)
	}

	return nil
}

/*
Finish releases the stream subscribers once the final event is through.
*/
func (bus *taskBus) Finish() {
	bus.finishOnce.Do(func() {
		bus.manager.releaseBroker(bus.taskID, bus.broker)
	})
}

/*
abort closes a bus whose execution failed before it could publish a final
event.
*/
func (bus *taskBus) abort() {
	bus.mu.Lock()
	bus.closed = true
	bus.mu.Unlock()

	bus.Finish()
}

func (bus *taskBus) settle(ctx context.Context, final *a2a.TaskStatusUpdateEvent) {
	manager := bus.manager
	intent, _ := final.Metadata[agent.MetadataIntent].(string)

	manager.metrics.TaskFinished(intent, string(final.Status.State))

	credits, ok := skills.Credits(final.Metadata)

	if !ok {
		log.Error("final event without creditsUsed", "taskId", bus.taskID)
	}

	if manager.payments != nil && bus.token != "" && credits > 0 {
		balance, err := manager.payments.Burn(ctx, bus.token, credits)

		if err != nil {
			manager.metrics.BurnFailed()
			log.Error("failed to burn credits", "taskId", bus.taskID, "credits", credits, "error", err)
		} else {
			manager.metrics.CreditsBurned(credits)
			log.Info("credits burned", "taskId", bus.taskID, "credits", credits, "balance", balance)
		}
	}

	if manager.push != nil {
		manager.push.DeleteConfig(bus.taskID)
	}

	if err := manager.store.Archive(ctx, bus.taskID); err != nil {
		log.Error("failed to archive task", "taskId", bus.taskID, "error", err)
	}

	log.Info("task finalized", "taskId", bus.taskID, "state", final.Status.State, "creditsUsed", credits)
}

func historyLength(config *a2a.MessageSendConfiguration) int {
	if config == nil || config.HistoryLength == nil {
		return 0
	}

	return *config.HistoryLength
}

/*
toRPCError maps domain errors onto protocol errors.
*/
func toRPCError(err error) error {
	var rpcErr *errors.RpcError

	switch {
	case stderrors.As(err, &rpcErr):
		return rpcErr
	case stderrors.Is(err, stores.ErrNotFound):
		return errors.ErrTaskNotFound
	case stderrors.Is(err, agent.ErrTaskBusy):
		return errors.ErrInvalidParams.WithMessagef("%v", err)
	case stderrors.Is(err, agent.ErrNotRunning), stderrors.Is(err, agent.ErrAlreadyFinal):
		return errors.ErrTaskNotCancelable.WithMessagef("%v", err)
	}

	return errors.ErrInternal.WithMessagef("%v", err)
}
