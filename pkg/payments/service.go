/*
Package payments validates the bearer tokens that pay for tasks and burns
the credits each task reports.
*/
package payments

import "context"

/*
Grant describes what a validated token entitles its holder to.
*/
type Grant struct {
	Subscriber string
	PlanID     string
	AgentID    string
	Balance    int
}

/*
Service is the payments backend. Validate checks a token against this
agent's plan, and when requireCredits is set also that at least one credit
remains. Burn deducts credits and returns the remaining balance.
*/
type Service interface {
	Validate(ctx context.Context, token string, requireCredits bool) (*Grant, error)
	Burn(ctx context.Context, token string, credits int) (int, error)
}
