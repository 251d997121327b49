package skills

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	Conditions = []string{"Sunny", "Partly cloudy", "Cloudy", "Rainy", "Windy", "Foggy", "Snowy"}

	locationInPattern   = regexp.MustCompile(`(?i)\bweather\b.*?\bin\s+(.+)`)
	locationBarePattern = regexp.MustCompile(`(?i)\bweather\b\s*(?:(?:in|for|at)\b\s*)?(.*)`)
)

/*
Weather synthesizes a report. The numbers are random and stand in for a
real weather service.
*/
type Weather struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeather(seed uint64) *Weather {
	return &Weather{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func NewRandomWeather() *Weather {
	return NewWeather(uint64(time.Now().UnixNano()))
}

func (handler *Weather) Handle(ctx context.Context, req *Request) (*Result, error) {
	location := ExtractLocation(req.Text)

	if location == "" {
		return Failed(
			`Please specify a location, for example "Weather in London".`,
			map[string]any{"location": ""},
		), nil
	}

	handler.mu.Lock()
	condition := Conditions[handler.rng.IntN(len(Conditions))]
	temperature := 5 + handler.rng.IntN(31)
	humidity := 30 + handler.rng.IntN(41)
	windSpeed := 5 + handler.rng.IntN(21)
	handler.mu.Unlock()

	return Completed(
		fmt.Sprintf(
			"Weather in %s: %s, %d°C, humidity %d%%, wind %d km/h",
			location, condition, temperature, humidity, windSpeed,
		),
		CostWeather,
		map[string]any{
			"location":    location,
			"condition":   condition,
			"temperature": temperature,
			"humidity":    humidity,
			"windSpeed":   windSpeed,
		},
	), nil
}

/*
ExtractLocation returns what follows "weather [in]", trimmed of surrounding
punctuation.
*/
func ExtractLocation(text string) string {
	match := locationInPattern.FindStringSubmatch(text)

	if match == nil {
		match = locationBarePattern.FindStringSubmatch(text)
	}

	if match == nil {
		return ""
	}

	return strings.Trim(strings.TrimSpace(match[1]), "?.!,;: ")
}
