package skills

import (
	"context"
	"time"

	"github.com/theapemachine/a2a-payments/pkg/intent"
)

type Handler interface {
	Handle(ctx context.Context, req *Request) (*Result, error)
}

type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

func (fn HandlerFunc) Handle(ctx context.Context, req *Request) (*Result, error) {
	return fn(ctx, req)
}

/*
Registry maps intents to handlers. Intents without a handler fall back to
General.
*/
type Registry struct {
	handlers map[intent.Intent]Handler
	fallback Handler
}

type RegistryOption func(*Registry)

/*
NewRegistry installs the default handler for every intent, then applies
options.
*/
func NewRegistry(options ...RegistryOption) *Registry {
	registry := &Registry{
		handlers: map[intent.Intent]Handler{
			intent.Greeting:         Greeting{},
			intent.Calculation:      Calculation{},
			intent.Weather:          NewRandomWeather(),
			intent.Translation:      Translation{},
			intent.Streaming:        &Streaming{Ticks: DefaultStreamTicks, Interval: DefaultStreamInterval},
			intent.PushNotification: &PushNotification{Delay: DefaultPushDelay},
			intent.General:          General{},
		},
		fallback: General{},
	}

	for _, option := range options {
		option(registry)
	}

	return registry
}

func WithHandler(in intent.Intent, handler Handler) RegistryOption {
	return func(registry *Registry) {
		registry.handlers[in] = handler
	}
}

func WithStreaming(ticks int, interval time.Duration) RegistryOption {
	return WithHandler(intent.Streaming, &Streaming{Ticks: ticks, Interval: interval})
}

func WithPushDelay(delay time.Duration) RegistryOption {
	return WithHandler(intent.PushNotification, &PushNotification{Delay: delay})
}

func (registry *Registry) Lookup(in intent.Intent) Handler {
	if handler, ok := registry.handlers[in]; ok {
		return handler
	}

	return registry.fallback
}
