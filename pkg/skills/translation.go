package skills

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var translatePattern = regexp.MustCompile(`(?i)translate\s+"([^"]+)"\s+to\s+([\p{L}]+)`)

// Phrases is the built-in phrase table, keyed by language then phrase.
var Phrases = map[string]map[string]string{
	"spanish": {
		"hello":        "hola",
		"goodbye":      "adiós",
		"thank you":    "gracias",
		"good morning": "buenos días",
		"how are you":  "¿cómo estás?",
	},
	"french": {
		"hello":        "bonjour",
		"goodbye":      "au revoir",
		"thank you":    "merci",
		"good morning": "bonjour",
		"how are you":  "comment allez-vous ?",
	},
	"german": {
		"hello":        "hallo",
		"goodbye":      "auf Wiedersehen",
		"thank you":    "danke",
		"good morning": "guten Morgen",
		"how are you":  "wie geht es dir?",
	},
	"italian": {
		"hello":        "ciao",
		"goodbye":      "arrivederci",
		"thank you":    "grazie",
		"good morning": "buongiorno",
		"how are you":  "come stai?",
	},
}

/*
Translation looks phrases up in Phrases. Unknown phrases fall back to the
input annotated with the language, standing in for a translation service.
*/
type Translation struct{}

func (Translation) Handle(ctx context.Context, req *Request) (*Result, error) {
	match := translatePattern.FindStringSubmatch(req.Text)

	if match == nil {
		return Failed(
			`Please use the format: Translate "text" to <language>.`,
			nil,
		), nil
	}

	text, language := match[1], match[2]
	translated, found := Phrases[strings.ToLower(language)][strings.ToLower(strings.TrimSpace(text))]

	if !found {
		translated = fmt.Sprintf("%s (%s)", text, language)
	}

	return Completed(
		fmt.Sprintf("Translation to %s: %s", language, translated),
		CostTranslation,
		map[string]any{
			"originalText":   text,
			"targetLanguage": language,
			"translatedText": translated,
			"dictionaryHit":  found,
		},
	), nil
}
