package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
)

/*
Claims are carried by every access token the ledger issues.
*/
type Claims struct {
	PlanID  string `json:"plan"`
	AgentID string `json:"agent"`
	jwt.RegisteredClaims
}

type LedgerConfig struct {
	SigningKey     []byte
	PlanID         string
	AgentID        string
	InitialCredits int
	TokenTTL       time.Duration
}

/*
Ledger is a development payments backend. It signs its own HS256 tokens and
keeps subscriber balances in memory, so the host can run end to end without
an external payments provider.
*/
type Ledger struct {
	mu       sync.Mutex
	config   LedgerConfig
	balances map[string]int
}

/*
NewLedger falls back to a random signing key when none is configured, which
invalidates every token on restart.
*/
func NewLedger(config LedgerConfig) (*Ledger, error) {
	if len(config.SigningKey) == 0 {
		key := make([]byte, 32)

		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}

		log.Warn("no payments api key configured, using an ephemeral signing key")
		config.SigningKey = key
	}

	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}

	return &Ledger{
		config:   config,
		balances: make(map[string]int),
	}, nil
}

/*
Order credits a subscriber with the plan's initial credits.
*/
func (ledger *Ledger) Order(subscriber string) int {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	return ledger.order(subscriber)
}

// order expects ledger.mu to be held.
func (ledger *Ledger) order(subscriber string) int {
	ledger.balances[subscriber] += ledger.config.InitialCredits

	log.Info("plan ordered", "subscriber", subscriber, "plan", ledger.config.PlanID, "balance", ledger.balances[subscriber])

	return ledger.balances[subscriber]
}

/*
IssueToken signs an access token for subscriber, ordering the plan first
when the subscriber has never bought it.
*/
func (ledger *Ledger) IssueToken(subscriber string) (string, int, error) {
	if subscriber == "" {
		return "", 0, fmt.Errorf("subscriber is required")
	}

	ledger.mu.Lock()
	balance, known := ledger.balances[subscriber]

	if !known {
		balance = ledger.order(subscriber)
	}

	ledger.mu.Unlock()

	now := time.Now()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		PlanID:  ledger.config.PlanID,
		AgentID: ledger.config.AgentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ledger.config.TokenTTL)),
		},
	}).SignedString(ledger.config.SigningKey)

	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, balance, nil
}

func (ledger *Ledger) Balance(subscriber string) int {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	return ledger.balances[subscriber]
}

func (ledger *Ledger) Validate(ctx context.Context, token string, requireCredits bool) (*Grant, error) {
	claims, err := ledger.parse(token)

	if err != nil {
		return nil, err
	}

	grant := &Grant{
		Subscriber: claims.Subject,
		PlanID:     claims.PlanID,
		AgentID:    claims.AgentID,
		Balance:    ledger.Balance(claims.Subject),
	}

	if requireCredits && grant.Balance < 1 {
		return grant, ErrPaymentRequired
	}

	return grant, nil
}

func (ledger *Ledger) Burn(ctx context.Context, token string, credits int) (int, error) {
	claims, err := ledger.parse(token)

	if err != nil {
		return 0, err
	}

	if credits < 0 {
		return 0, fmt.Errorf("cannot burn %d credits", credits)
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	balance := ledger.balances[claims.Subject]

	if credits > balance {
		ledger.balances[claims.Subject] = 0
		return 0, ErrPaymentRequired.withMessage(
			fmt.Sprintf("burned %d of %d credits, balance exhausted", balance, credits),
		)
	}

	ledger.balances[claims.Subject] = balance - credits

	return ledger.balances[claims.Subject], nil
}

func (ledger *Ledger) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return ledger.config.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, ErrUnauthorized.withMessage(fmt.Sprintf("invalid token: %v", err))
	}

	if claims.Subject == "" {
		return nil, ErrUnauthorized.withMessage("token has no subject")
	}

	if claims.PlanID != ledger.config.PlanID || claims.AgentID != ledger.config.AgentID {
		return nil, ErrForbidden
	}

	return claims, nil
}
