/*
Package intent routes free text to the handler that should answer it using
fixed keyword lists. Classification is pure and deterministic.
*/
package intent

import (
	"regexp"
	"strings"
)

type Intent string

const (
	Greeting         Intent = "greeting"
	Calculation      Intent = "calculation"
	Weather          Intent = "weather"
	Translation      Intent = "translation"
	Streaming        Intent = "streaming"
	PushNotification Intent = "push_notification"
	General          Intent = "general"
)

// All lists every intent in classification priority order.
var All = []Intent{
	Greeting, Calculation, Weather, Translation, Streaming, PushNotification, General,
}

var (
	GreetingWords       = []string{"hello", "hi", "hey", "greetings", "good morning", "good afternoon", "good evening"}
	MathKeywords        = []string{"calculate", "math", "compute", "solve", "what is", "="}
	TranslationKeywords = []string{"translate", "translation", "say in", "how do you say"}

	greetingPattern = wordPattern(GreetingWords)
	quotedPattern   = regexp.MustCompile(`"[^"]*"`)
	digitPattern    = regexp.MustCompile(`[0-9]`)
	operatorPattern = regexp.MustCompile(`[+\-*/]`)
)

/*
Classify returns the intent for text. Rules are evaluated in priority order
and the first match wins. Two rules are narrower than a plain substring
test: quoted segments are payload (the phrase to translate, say) and are
ignored while matching, and greeting words only match as whole words, so
"this" or "which" is not a greeting. Every other rule is a substring test.
*/
func Classify(text string) Intent {
	lower := strings.ToLower(quotedPattern.ReplaceAllString(text, " "))

	switch {
	case greetingPattern.MatchString(lower):
		return Greeting
	case containsAny(lower, MathKeywords) ||
		(digitPattern.MatchString(lower) && operatorPattern.MatchString(lower)):
		return Calculation
	case strings.Contains(lower, "weather"):
		return Weather
	case containsAny(lower, TranslationKeywords):
		return Translation
	case strings.Contains(lower, "stream"):
		return Streaming
	case strings.Contains(lower, "push notification"):
		return PushNotification
	default:
		return General
	}
}

/*
DetectGreeting returns the first greeting word present in text, or an empty
string.
*/
func DetectGreeting(text string) string {
	return greetingPattern.FindString(strings.ToLower(text))
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

/*
wordPattern matches any of words on word boundaries, so that "hi" does not
fire inside "this" or "chicago".
*/
func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))

	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}

	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
