/*
Package tools exposes the agent's synchronous skills as MCP tools, so they
can be called without going through a task.
*/
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/intent"
	"github.com/theapemachine/a2a-payments/pkg/skills"
)

/*
SkillTool binds one MCP tool to the handler of one intent. Build turns the
tool arguments into the message text the handler expects.
*/
type SkillTool struct {
	Tool     mcp.Tool
	Intent   intent.Intent
	Build    func(args map[string]any) (string, error)
	registry *skills.Registry
}

/*
NewSkillTools returns the tools for greeting, calculation, weather and
translation. Streaming and push notifications need a task to report into and
are not offered.
*/
func NewSkillTools(registry *skills.Registry) []*SkillTool {
	return []*SkillTool{
		{
			Tool: mcp.NewTool(
				"greet",
				mcp.WithDescription("Greet the agent and get the list of what it can do."),
				mcp.WithString("text", mcp.Description("The greeting, e.g. \"Hello\".")),
			),
			Intent: intent.Greeting,
			Build: func(args map[string]any) (string, error) {
				text, _ := args["text"].(string)

				if intent.DetectGreeting(text) == "" {
					text = strings.TrimSpace("Hello " + text)
				}

				return text, nil
			},
			registry: registry,
		},
		{
			Tool: mcp.NewTool(
				"calculate",
				mcp.WithDescription("Evaluate an arithmetic expression with + - * / and parentheses."),
				mcp.WithString("expression", mcp.Description("The expression, e.g. \"15 * 7\"."), mcp.Required()),
			),
			Intent: intent.Calculation,
			Build: func(args map[string]any) (string, error) {
				expression, err := required(args, "expression")
				return "Calculate " + expression, err
			},
			registry: registry,
		},
		{
			Tool: mcp.NewTool(
				"weather",
				mcp.WithDescription("Get a simulated weather report for a location."),
				mcp.WithString("location", mcp.Description("The location, e.g. \"London\"."), mcp.Required()),
			),
			Intent: intent.Weather,
			Build: func(args map[string]any) (string, error) {
				location, err := required(args, "location")
				return "Weather in " + location, err
			},
			registry: registry,
		},
		{
			Tool: mcp.NewTool(
				"translate",
				mcp.WithDescription("Translate a short phrase using the built-in phrase table."),
				mcp.WithString("text", mcp.Description("The phrase to translate."), mcp.Required()),
				mcp.WithString("language", mcp.Description("The target language, e.g. \"Spanish\"."), mcp.Required()),
			),
			Intent: intent.Translation,
			Build: func(args map[string]any) (string, error) {
				text, err := required(args, "text")

				if err != nil {
					return "", err
				}

				language, err := required(args, "language")

				return fmt.Sprintf(`Translate "%s" to %s`, text, language), err
			},
			registry: registry,
		},
	}
}

/*
Register adds every skill tool to srv.
*/
func Register(srv *server.MCPServer, registry *skills.Registry) {
	for _, tool := range NewSkillTools(registry) {
		srv.AddTool(tool.Tool, tool.Handle)
	}
}

func (tool *SkillTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := tool.Build(req.GetArguments())

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("tool called", "tool", tool.Tool.Name, "text", text)

	result, err := tool.registry.Lookup(tool.Intent).Handle(ctx, &skills.Request{
		Text:      text,
		TaskID:    uuid.NewString(),
		ContextID: uuid.NewString(),
	})

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	credits, _ := result.CreditsUsed()

	if result.State != a2a.TaskStateCompleted {
		return mcp.NewToolResultError(fmt.Sprintf("%s (credits used: %d)", result.Text(), credits)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n(credits used: %d)", result.Text(), credits)), nil
}

func required(args map[string]any, key string) (string, error) {
	value, _ := args[key].(string)

	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}

	return strings.TrimSpace(value), nil
}
