package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, credits int) *Ledger {
	t.Helper()

	ledger, err := NewLedger(LedgerConfig{
		SigningKey:     []byte("test-key"),
		PlanID:         "plan-1",
		AgentID:        "agent-1",
		InitialCredits: credits,
		TokenTTL:       time.Hour,
	})
	require.NoError(t, err)

	return ledger
}

func TestIssueAndValidate(t *testing.T) {
	ledger := newTestLedger(t, 10)

	token, balance, err := ledger.IssueToken("alice")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	grant, err := ledger.Validate(context.Background(), token, true)
	require.NoError(t, err)
	assert.Equal(t, "alice", grant.Subscriber)
	assert.Equal(t, "plan-1", grant.PlanID)
	assert.Equal(t, 10, grant.Balance)

	_, balance, err = ledger.IssueToken("alice")
	require.NoError(t, err)
	assert.Equal(t, 10, balance, "a second token does not order the plan again")
}

func TestValidateRejections(t *testing.T) {
	ledger := newTestLedger(t, 0)
	ctx := context.Background()

	_, err := ledger.Validate(ctx, "", false)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	_, err = ledger.Validate(ctx, "not-a-jwt", false)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	token, _, err := ledger.IssueToken("bob")
	require.NoError(t, err)

	_, err = ledger.Validate(ctx, token, false)
	assert.NoError(t, err, "credits are only checked when required")

	_, err = ledger.Validate(ctx, token, true)
	assert.True(t, errors.Is(err, ErrPaymentRequired))

	other, err := NewLedger(LedgerConfig{
		SigningKey: []byte("test-key"),
		PlanID:     "plan-2",
		AgentID:    "agent-1",
	})
	require.NoError(t, err)

	_, err = other.Validate(ctx, token, false)
	assert.True(t, errors.Is(err, ErrForbidden))

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		PlanID:           "plan-1",
		AgentID:          "agent-1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "eve"},
	}).SignedString([]byte("another-key"))
	require.NoError(t, err)

	_, err = ledger.Validate(ctx, foreign, false)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestBurn(t *testing.T) {
	ledger := newTestLedger(t, 5)
	ctx := context.Background()

	token, _, err := ledger.IssueToken("carol")
	require.NoError(t, err)

	remaining, err := ledger.Burn(ctx, token, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, 2, ledger.Balance("carol"))

	remaining, err = ledger.Burn(ctx, token, 4)
	assert.True(t, errors.Is(err, ErrPaymentRequired))
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 0, ledger.Balance("carol"))

	_, err = ledger.Burn(ctx, "garbage", 1)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestIssueTokenOrdersOnce(t *testing.T) {
	ledger := newTestLedger(t, 10)

	var wg sync.WaitGroup

	balances := make([]int, 16)

	for i := range balances {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, balance, err := ledger.IssueToken("carol")
			assert.NoError(t, err)
			balances[i] = balance
		}()
	}

	wg.Wait()

	assert.Equal(t, 10, ledger.Balance("carol"))

	for _, balance := range balances {
		assert.Equal(t, 10, balance)
	}
}
