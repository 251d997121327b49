package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/intent"
)

type recorder struct {
	mu     sync.Mutex
	events []a2a.Event
	failAt int
}

func (r *recorder) Publish(ctx context.Context, event a2a.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return errors.New("bus closed")
	}

	r.events = append(r.events, event)
	return nil
}

func (r *recorder) statusUpdates() []*a2a.TaskStatusUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*a2a.TaskStatusUpdateEvent

	for _, event := range r.events {
		if update, ok := event.(*a2a.TaskStatusUpdateEvent); ok {
			out = append(out, update)
		}
	}

	return out
}

func handle(t *testing.T, handler Handler, text string) *Result {
	t.Helper()
	result, err := handler.Handle(context.Background(), &Request{Text: text, TaskID: "t1", ContextID: "c1"})
	assert.NoError(t, err)
	return result
}

func TestCalculation(t *testing.T) {
	Convey("Given the calculation handler", t, func() {
		handler := Calculation{}

		Convey("When asked to calculate 15 * 7", func() {
			result, err := handler.Handle(context.Background(), &Request{Text: "Calculate 15 * 7"})

			Convey("Then it completes with 105 for 2 credits", func() {
				So(err, ShouldBeNil)
				So(result.State, ShouldEqual, a2a.TaskStateCompleted)
				So(result.Metadata["expression"], ShouldEqual, "15 * 7")
				So(result.Metadata["result"], ShouldEqual, 105.0)
				So(result.Text(), ShouldContainSubstring, "105")
				credits, ok := result.CreditsUsed()
				So(ok, ShouldBeTrue)
				So(credits, ShouldEqual, CostCalculation)
			})
		})

		Convey("When the expression is missing", func() {
			result, err := handler.Handle(context.Background(), &Request{Text: "Calculate "})

			Convey("Then it fails for 1 credit", func() {
				So(err, ShouldBeNil)
				So(result.State, ShouldEqual, a2a.TaskStateFailed)
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostFailure)
			})
		})

		Convey("When the expression cannot be evaluated", func() {
			result, err := handler.Handle(context.Background(), &Request{Text: "calculate 4 / 0"})

			Convey("Then it fails locally instead of returning an error", func() {
				So(err, ShouldBeNil)
				So(result.State, ShouldEqual, a2a.TaskStateFailed)
				So(result.Text(), ShouldContainSubstring, "division by zero")
			})
		})
	})
}

func TestExtractExpression(t *testing.T) {
	assert.Equal(t, "15 * 7", ExtractExpression("Calculate 15 * 7"))
	assert.Equal(t, "2 + 2", ExtractExpression("What is 2 + 2?"))
	assert.Equal(t, "(1+2)*3", ExtractExpression("solve: (1+2)*3 please"))
	assert.Equal(t, "", ExtractExpression("Calculate "))
}

func TestTranslation(t *testing.T) {
	Convey("Given the translation handler", t, func() {
		handler := Translation{}

		Convey("When translating a known phrase", func() {
			result := handle(t, handler, `Translate "hello" to Spanish`)

			Convey("Then the phrase table answers for 4 credits", func() {
				So(result.State, ShouldEqual, a2a.TaskStateCompleted)
				So(result.Text(), ShouldContainSubstring, "hola")
				So(result.Metadata["dictionaryHit"], ShouldBeTrue)
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostTranslation)
			})
		})

		Convey("When translating an unknown phrase", func() {
			result := handle(t, handler, `translate "good night" to Klingon`)

			Convey("Then the text is annotated with the language", func() {
				So(result.State, ShouldEqual, a2a.TaskStateCompleted)
				So(result.Metadata["translatedText"], ShouldEqual, "good night (Klingon)")
			})
		})

		Convey("When the target language is missing", func() {
			result := handle(t, handler, `Translate "bonjour"`)

			Convey("Then it fails for 1 credit", func() {
				So(result.State, ShouldEqual, a2a.TaskStateFailed)
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostFailure)
			})
		})
	})
}

func TestWeather(t *testing.T) {
	Convey("Given a seeded weather handler", t, func() {
		handler := NewWeather(42)

		Convey("When asking for the weather in London", func() {
			result := handle(t, handler, "Weather in London")

			Convey("Then the report is in range and costs 3 credits", func() {
				So(result.State, ShouldEqual, a2a.TaskStateCompleted)
				So(result.Metadata["location"], ShouldEqual, "London")
				So(result.Metadata["temperature"], ShouldBeBetweenOrEqual, 5, 35)
				So(result.Metadata["humidity"], ShouldBeBetweenOrEqual, 30, 70)
				So(result.Metadata["windSpeed"], ShouldBeBetweenOrEqual, 5, 25)
				So(Conditions, ShouldContain, result.Metadata["condition"])
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostWeather)
			})
		})

		Convey("When no location is given", func() {
			result := handle(t, handler, "weather in ")

			Convey("Then it fails for 1 credit", func() {
				So(result.State, ShouldEqual, a2a.TaskStateFailed)
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostFailure)
			})
		})
	})
}

func TestExtractLocation(t *testing.T) {
	assert.Equal(t, "London", ExtractLocation("Weather in London"))
	assert.Equal(t, "Paris", ExtractLocation("what's the weather like in Paris?"))
	assert.Equal(t, "Tokyo", ExtractLocation("weather Tokyo"))
	assert.Equal(t, "Inverness", ExtractLocation("weather Inverness"))
	assert.Equal(t, "", ExtractLocation("weather"))
}

func TestGreetingAndGeneral(t *testing.T) {
	Convey("Given the greeting handler", t, func() {
		first := handle(t, Greeting{}, "hey there")
		second := handle(t, Greeting{}, "hey there")

		Convey("Then it echoes the greeting word and is idempotent", func() {
			So(first.Text(), ShouldStartWith, "Hey!")
			So(first.Text(), ShouldEqual, second.Text())
			credits, _ := first.CreditsUsed()
			So(credits, ShouldEqual, CostGreeting)
		})
	})

	Convey("Given the general handler", t, func() {
		result := handle(t, General{}, "tell me a story")

		Convey("Then it echoes the input with the menu", func() {
			So(result.Text(), ShouldContainSubstring, `"tell me a story"`)
			So(result.Text(), ShouldContainSubstring, "Calculate 15 * 7")
			credits, _ := result.CreditsUsed()
			So(credits, ShouldEqual, CostGeneral)
		})
	})
}

func TestStreaming(t *testing.T) {
	Convey("Given a streaming handler with a short interval", t, func() {
		handler := &Streaming{Ticks: 10, Interval: time.Millisecond}
		bus := &recorder{}

		Convey("When it runs to completion", func() {
			result, err := handler.Handle(context.Background(), &Request{
				Text: "stream", TaskID: "t1", ContextID: "c1", Publisher: bus,
			})

			Convey("Then it publishes 11 non-final working events and completes", func() {
				So(err, ShouldBeNil)
				updates := bus.statusUpdates()
				So(len(updates), ShouldEqual, 11)

				for i, update := range updates {
					So(update.Final, ShouldBeFalse)
					So(update.Status.State, ShouldEqual, a2a.TaskStateWorking)
					So(update.TaskID, ShouldEqual, "t1")

					if i < 10 {
						So(update.Status.Message.String(), ShouldEqual,
							fmt.Sprintf("Streaming message %d/10", i+1))
					}
				}

				So(result.State, ShouldEqual, a2a.TaskStateCompleted)
				credits, _ := result.CreditsUsed()
				So(credits, ShouldEqual, CostStreaming)
			})
		})

		Convey("When the context is canceled mid-stream", func() {
			ctx, cancel := context.WithCancel(context.Background())
			slow := &Streaming{Ticks: 10, Interval: 20 * time.Millisecond}

			go func() {
				time.Sleep(30 * time.Millisecond)
				cancel()
			}()

			_, err := slow.Handle(ctx, &Request{TaskID: "t1", ContextID: "c1", Publisher: bus})

			Convey("Then the loop stops between ticks", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(len(bus.statusUpdates()), ShouldBeLessThan, 10)
			})
		})

		Convey("When the publisher rejects an event", func() {
			bus.failAt = 3
			_, err := handler.Handle(context.Background(), &Request{Publisher: bus})

			Convey("Then the handler stops with the error", func() {
				So(err, ShouldNotBeNil)
				So(len(bus.statusUpdates()), ShouldEqual, 2)
			})
		})
	})
}

func TestPushNotification(t *testing.T) {
	Convey("Given a push notification handler", t, func() {
		handler := &PushNotification{Delay: 5 * time.Millisecond}
		bus := &recorder{}

		result, err := handler.Handle(context.Background(), &Request{
			TaskID: "t1", ContextID: "c1", Publisher: bus,
		})

		Convey("Then it returns working with a continuation", func() {
			So(err, ShouldBeNil)
			So(result.State, ShouldEqual, a2a.TaskStateWorking)
			So(result.AwaitingMore(), ShouldBeTrue)
			So(len(bus.statusUpdates()), ShouldEqual, 1)

			Convey("And the continuation completes for 5 credits", func() {
				final, err := result.Continuation(context.Background())
				So(err, ShouldBeNil)
				So(final.State, ShouldEqual, a2a.TaskStateCompleted)
				credits, _ := final.CreditsUsed()
				So(credits, ShouldEqual, CostPushNotification)
			})

			Convey("And the continuation honors cancellation", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := result.Continuation(ctx)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestCredits(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
		ok    bool
	}{
		{"int", 3, 3, true},
		{"float from json", 4.0, 4, true},
		{"fractional", 1.5, 0, false},
		{"json number", json.Number("5"), 5, true},
		{"missing", nil, 0, false},
		{"string", "2", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Credits(map[string]any{KeyCreditsUsed: tt.value})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry with an override", t, func() {
		custom := HandlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
			return Completed("custom", 9, nil), nil
		})

		registry := NewRegistry(WithHandler(intent.Weather, custom))

		Convey("Then every intent resolves and the override wins", func() {
			for _, in := range intent.All {
				So(registry.Lookup(in), ShouldNotBeNil)
			}

			result, _ := registry.Lookup(intent.Weather).Handle(context.Background(), &Request{})
			So(result.Text(), ShouldEqual, "custom")
			So(registry.Lookup(intent.Intent("unknown")), ShouldHaveSameTypeAs, General{})
		})
	})
}
