package skills

import (
	"fmt"
	"strings"

	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/intent"
)

type Descriptor struct {
	Intent      intent.Intent
	Name        string
	Description string
	Example     string
	Credits     int
	Tags        []string
}

// Catalog describes what the agent offers, in classification order.
var Catalog = []Descriptor{
	{intent.Greeting, "Greeting", "Says hello and lists what the agent can do", "Hello", CostGreeting, []string{"greeting"}},
	{intent.Calculation, "Calculator", "Evaluates arithmetic with + - * / and parentheses", "Calculate 15 * 7", CostCalculation, []string{"math"}},
	{intent.Weather, "Weather", "Reports simulated weather for a location", "Weather in London", CostWeather, []string{"weather"}},
	{intent.Translation, "Translator", "Translates short phrases from a built-in phrase table", `Translate "hello" to Spanish`, CostTranslation, []string{"translation"}},
	{intent.Streaming, "Streaming", "Streams progress updates before completing", "Start a stream", CostStreaming, []string{"streaming"}},
	{intent.PushNotification, "Push notification", "Completes in the background and notifies a webhook", "Test push notification", CostPushNotification, []string{"push"}},
	{intent.General, "General", "Echoes anything else with this menu", "Tell me something", CostGeneral, []string{"general"}},
}

/*
Costs maps each skill id to its credit cost.
*/
func Costs() map[string]int {
	out := make(map[string]int, len(Catalog))

	for _, descriptor := range Catalog {
		out[string(descriptor.Intent)] = descriptor.Credits
	}

	return out
}

func AgentSkills() []a2a.AgentSkill {
	out := make([]a2a.AgentSkill, 0, len(Catalog))

	for _, descriptor := range Catalog {
		out = append(out, a2a.AgentSkill{
			ID:          string(descriptor.Intent),
			Name:        descriptor.Name,
			Description: fmt.Sprintf("%s (%s)", descriptor.Description, plural(descriptor.Credits)),
			Tags:        descriptor.Tags,
			Examples:    []string{descriptor.Example},
		})
	}

	return out
}

/*
Menu renders the capability list used by the greeting and general handlers.
*/
func Menu() string {
	var sb strings.Builder

	for _, descriptor := range Catalog {
		if descriptor.Intent == intent.General {
			continue
		}

		fmt.Fprintf(&sb, "- %s, e.g. %s (%s)\n", descriptor.Description, descriptor.Example, plural(descriptor.Credits))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func plural(credits int) string {
	if credits == 1 {
		return "1 credit"
	}

	return fmt.Sprintf("%d credits", credits)
}
