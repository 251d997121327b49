package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/theapemachine/a2a-payments/pkg/intent"
)

type Greeting struct{}

func (Greeting) Handle(ctx context.Context, req *Request) (*Result, error) {
	word := intent.DetectGreeting(req.Text)
	opener := "Hello"

	if word != "" {
		opener = strings.ToUpper(word[:1]) + word[1:]
	}

	text := fmt.Sprintf(
		"%s! I'm a payments-enabled A2A agent. Every request is paid for in credits. I can help with:\n%s",
		opener, Menu(),
	)

	return Completed(text, CostGreeting, map[string]any{"greeting": word}), nil
}
