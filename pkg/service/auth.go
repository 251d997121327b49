package service

import (
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-http-utils/headers"
	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/agent"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
	"github.com/theapemachine/a2a-payments/pkg/payments"
)

type localsKey string

const (
	localsBearerToken localsKey = "bearerToken"
	localsGrant       localsKey = "paymentsGrant"
)

/*
bearerAuth guards the JSON-RPC endpoint: rate limit first, then the token,
then the balance for methods that cost credits.
*/
func (srv *AgentServer) bearerAuth(c fiber.Ctx) error {
	if srv.limiter != nil && !srv.limiter.Allow(c.IP()) {
		return rejectPayment(c, nil, payments.ErrRateLimited)
	}

	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}

	_ = json.Unmarshal(c.Body(), &probe)

	token := bearerToken(c.Get(headers.Authorization))

	grant, err := srv.payments.Validate(
		c.Context(),
		token,
		probe.Method == a2a.MethodSendMessage || probe.Method == a2a.MethodStreamMessage,
	)

	if err != nil {
		return rejectPayment(c, probe.ID, err)
	}

	c.Locals(localsBearerToken, token)
	c.Locals(localsGrant, grant)

	return c.Next()
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")

	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

func rejectPayment(c fiber.Ctx, id json.RawMessage, err error) error {
	status := fiber.StatusUnauthorized
	rpcErr := errors.ErrUnauthorized.WithMessagef("%v", err)

	var paymentErr *payments.Error

	if stderrors.As(err, &paymentErr) {
		status = paymentErr.Status

		switch status {
		case fiber.StatusPaymentRequired:
			rpcErr = errors.ErrPaymentRequired.WithMessagef("%s", paymentErr.Message)
		case fiber.StatusForbidden:
			rpcErr = errors.ErrForbidden.WithMessagef("%s", paymentErr.Message)
		case fiber.StatusTooManyRequests:
			rpcErr = errors.ErrRateLimited.WithMessagef("%s", paymentErr.Message)
		default:
			rpcErr = errors.ErrUnauthorized.WithMessagef("%s", paymentErr.Message)
		}
	}

	log.Warn("request rejected", "status", status, "ip", c.IP(), "error", err)

	return c.Status(status).JSON(jsonrpc.NewErrorResponse(id, rpcErr))
}

/*
requestMetadata carries the caller's token into the executor, whether or not
payments are enforced. It lives in request metadata only and is never
written to a task.
*/
func requestMetadata(c fiber.Ctx) map[string]any {
	metadata := map[string]any{}
	token, _ := c.Locals(localsBearerToken).(string)

	if token == "" {
		token = bearerToken(c.Get(headers.Authorization))
	}

	if token != "" {
		metadata[agent.MetadataBearerToken] = token
	}

	return metadata
}
