package skills

import (
	"context"
	"fmt"
)

type General struct{}

func (General) Handle(ctx context.Context, req *Request) (*Result, error) {
	text := fmt.Sprintf("You said: %q\n\nHere is what I can do:\n%s", req.Text, Menu())
	return Completed(text, CostGeneral, nil), nil
}
