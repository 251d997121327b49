package errors

import (
	"context"
	"fmt"
	"time"
)

/*
RpcError represents a JSON-RPC error response.
*/
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for RpcError.
*/
func (e *RpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

/*
Is matches on the error code so that copies made with WithMessagef still
compare equal to the sentinel they were derived from.
*/
func (e *RpcError) Is(target error) bool {
	other, ok := target.(*RpcError)

	if !ok {
		return false
	}

	return e.Code == other.Code
}

// JSON-RPC reserved codes.
var (
	ErrParseError     = &RpcError{Code: -32700, Message: "Parse error"}
	ErrInvalidRequest = &RpcError{Code: -32600, Message: "Invalid Request"}
	ErrMethodNotFound = &RpcError{Code: -32601, Message: "Method not found"}
	ErrInvalidParams  = &RpcError{Code: -32602, Message: "Invalid params"}
	ErrInternal       = &RpcError{Code: -32603, Message: "Internal error"}
)

// A2A protocol codes.
var (
	ErrTaskNotFound                   = &RpcError{Code: -32001, Message: "Task not found"}
	ErrTaskNotCancelable              = &RpcError{Code: -32002, Message: "Task cannot be canceled"}
	ErrPushNotificationNotSupported   = &RpcError{Code: -32003, Message: "Push Notification is not supported"}
	ErrUnsupportedOperation           = &RpcError{Code: -32004, Message: "This operation is not supported"}
	ErrPushNotificationConfigNotFound = &RpcError{Code: -32005, Message: "Push notification config not found"}
	ErrUnauthorized                   = &RpcError{Code: -32040, Message: "Unauthorized"}
	ErrPaymentRequired                = &RpcError{Code: -32042, Message: "Payment required"}
	ErrForbidden                      = &RpcError{Code: -32043, Message: "Forbidden"}
	ErrRateLimited                    = &RpcError{Code: -32049, Message: "Too many requests"}
)

// WithMessagef creates a *copy* of an RpcError with a formatted message.
// It does not modify the original error variable.
func (e *RpcError) WithMessagef(format string, args ...any) *RpcError {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

/*
RetryWithBackoff executes fn until it succeeds, the attempts run out, or ctx
is done. The delay between attempts grows by BackoffFactor up to MaxDelay.
*/
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	var err error

	if config == nil {
		config = DefaultRetryConfig()
	}

	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)

		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
}
