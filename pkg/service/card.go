package service

import (
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/skills"
)

const PaymentsExtensionURI = "urn:a2a:extensions:payments:credits:v1"

type CardOptions struct {
	Name     string
	URL      string
	Version  string
	AgentID  string
	PlanID   string
	Payments bool
}

/*
NewAgentCard describes the agent: one skill per intent, streaming and push
support, and the credit price list as a payments extension.
*/
func NewAgentCard(options CardOptions) a2a.AgentCard {
	if options.Version == "" {
		options.Version = "1.0.0"
	}

	return a2a.AgentCard{
		ProtocolVersion:    a2a.ProtocolVersion,
		Name:               options.Name,
		Description:        "A credit-metered demo agent: greetings, arithmetic, weather, translation, streaming and push notifications.",
		URL:                options.URL,
		PreferredTransport: "JSONRPC",
		Provider: &a2a.AgentProvider{
			Organization: "theapemachine",
			URL:          "https://github.com/theapemachine/a2a-payments",
		},
		Version: options.Version,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      true,
			StateTransitionHistory: true,
			Extensions: []a2a.AgentExtension{{
				URI:         PaymentsExtensionURI,
				Description: "Tasks are paid for with plan credits presented as a bearer token.",
				Required:    options.Payments,
				Params: map[string]any{
					"agentId": options.AgentID,
					"planId":  options.PlanID,
					"costs":   skills.Costs(),
				},
			}},
		},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills.AgentSkills(),
	}
}
