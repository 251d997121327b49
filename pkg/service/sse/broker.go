/*
Package sse fans a task's events out to its message/stream subscribers and
frames them as Server-Sent Events.
*/
package sse

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

const subscriberBuffer = 64

/*
Broker maintains the subscribers of a single task. A subscriber that falls
a full buffer behind is disconnected rather than allowed to block the task.
*/
type Broker struct {
	mu      sync.Mutex
	taskID  string
	clients map[chan a2a.Event]struct{}
	closed  bool
}

func NewBroker(taskID string) *Broker {
	return &Broker{
		taskID:  taskID,
		clients: make(map[chan a2a.Event]struct{}),
	}
}

/*
Subscribe returns a channel of events and a function that ends the
subscription. The channel is closed when the broker closes, so a subscriber
joining a closed broker sees an already-closed channel.
*/
func (broker *Broker) Subscribe() (<-chan a2a.Event, func()) {
	ch := make(chan a2a.Event, subscriberBuffer)

	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		close(ch)
		return ch, func() {}
	}

	broker.clients[ch] = struct{}{}

	return ch, func() { broker.remove(ch) }
}

/*
Broadcast hands event to every subscriber without blocking.
*/
func (broker *Broker) Broadcast(event a2a.Event) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	for ch := range broker.clients {
		select {
		case ch <- event:
		default:
			log.Warn("dropping slow stream subscriber", "taskId", broker.taskID)
			delete(broker.clients, ch)
			close(ch)
		}
	}
}

/*
Close disconnects all clients and prevents further subscriptions.
*/
func (broker *Broker) Close() {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	broker.closed = true

	for ch := range broker.clients {
		close(ch)
	}

	broker.clients = map[chan a2a.Event]struct{}{}
}

func (broker *Broker) Subscribers() int {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	return len(broker.clients)
}

func (broker *Broker) remove(ch chan a2a.Event) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if _, ok := broker.clients[ch]; ok {
		delete(broker.clients, ch)
		close(ch)
	}
}
