package service

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
	"github.com/theapemachine/a2a-payments/pkg/service/sse"
)

/*
handleRPC acts as the central routing for all a2a RPC methods.
*/
func (srv *AgentServer) handleRPC(c fiber.Ctx) error {
	var request jsonrpc.Request

	if err := json.Unmarshal(c.Body(), &request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(jsonrpc.NewErrorResponse(
			nil, errors.ErrParseError.WithMessagef("invalid request body: %v", err),
		))
	}

	if request.JSONRPC != jsonrpc.Version || request.Method == "" {
		return c.Status(fiber.StatusBadRequest).JSON(jsonrpc.NewErrorResponse(
			request.ID, errors.ErrInvalidRequest,
		))
	}

	switch request.Method {
	case a2a.MethodSendMessage:
		return srv.handleTaskOperation(c, request.ID, func() (any, error) {
			var params a2a.MessageSendParams

			if err := decodeParams(&request, &params, validateSend); err != nil {
				return nil, err
			}

			return srv.manager.SendMessage(c.Context(), params, requestMetadata(c))
		})
	case a2a.MethodStreamMessage:
		return srv.handleStream(c, &request)
	case a2a.MethodGetTask:
		return srv.handleTaskOperation(c, request.ID, func() (any, error) {
			var params a2a.TaskQueryParams

			if err := decodeParams(&request, &params, validateQuery); err != nil {
				return nil, err
			}

			return srv.manager.GetTask(c.Context(), params)
		})
	case a2a.MethodCancelTask:
		return srv.handleTaskOperation(c, request.ID, func() (any, error) {
			var params a2a.TaskIDParams

			if err := decodeParams(&request, &params, validateTaskID); err != nil {
				return nil, err
			}

			return srv.manager.CancelTask(c.Context(), params)
		})
	case a2a.MethodSetPushConfig:
		return srv.handleTaskOperation(c, request.ID, func() (any, error) {
			var params a2a.TaskPushNotificationConfig

			if err := decodeParams(&request, &params, validatePushConfig); err != nil {
				return nil, err
			}

			return srv.manager.SetPushConfig(c.Context(), params)
		})
	case a2a.MethodGetPushConfig:
		return srv.handleTaskOperation(c, request.ID, func() (any, error) {
			var params a2a.TaskIDParams

			if err := decodeParams(&request, &params, validateTaskID); err != nil {
				return nil, err
			}

			return srv.manager.GetPushConfig(c.Context(), params)
		})
	case a2a.MethodResubscribe:
		// Brokers only live while their execution runs.
		return c.JSON(jsonrpc.NewErrorResponse(
			request.ID, errors.ErrUnsupportedOperation.WithMessagef("%s is not supported by this agent", request.Method),
		))
	default:
		return c.JSON(jsonrpc.NewErrorResponse(
			request.ID, errors.ErrMethodNotFound.WithMessagef("Method not found: %s", request.Method),
		))
	}
}

/*
handleStream answers message/stream with an event stream. Errors found
before the stream starts are returned as a plain JSON-RPC response.
*/
func (srv *AgentServer) handleStream(c fiber.Ctx, request *jsonrpc.Request) error {
	var params a2a.MessageSendParams

	if err := decodeParams(request, &params, validateSend); err != nil {
		return c.JSON(jsonrpc.NewErrorResponse(request.ID, asRPCError(err)))
	}

	events, unsubscribe, err := srv.manager.Stream(c.Context(), params, requestMetadata(c))

	if err != nil {
		return c.JSON(jsonrpc.NewErrorResponse(request.ID, asRPCError(err)))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	id := request.ID
	streamCtx := srv.manager.ctx

	return c.SendStreamWriter(func(w *bufio.Writer) {
		closed := srv.metrics.StreamOpened()

		defer closed()
		defer unsubscribe()

		err := sse.WriteEvents(streamCtx, w, id, events, srv.heartbeat)

		switch {
		case stderrors.Is(err, context.Canceled):
			shutdown := errors.ErrInternal.WithMessagef("stream closed: the agent is shutting down")

			if err := sse.WriteError(w, id, shutdown); err != nil {
				log.Debug("failed to send shutdown frame", "error", err)
			}
		case err != nil:
			log.Debug("stream ended early", "error", err)
		}
	})
}

func (srv *AgentServer) handleTaskOperation(c fiber.Ctx, requestID json.RawMessage, op func() (any, error)) error {
	result, err := op()

	if err != nil {
		rpcErr := asRPCError(err)

		log.Error("error processing task operation", "code", rpcErr.Code, "error", rpcErr.Message)

		return c.JSON(jsonrpc.NewErrorResponse(requestID, rpcErr))
	}

	return c.JSON(jsonrpc.NewResponse(requestID, result))
}

func asRPCError(err error) *errors.RpcError {
	var rpcErr *errors.RpcError

	if stderrors.As(toRPCError(err), &rpcErr) {
		return rpcErr
	}

	return errors.ErrInternal.WithMessagef("%v", err)
}

/*
decodeParams unmarshals the params of request into out and runs validate
over the result.
*/
func decodeParams[T any](request *jsonrpc.Request, out *T, validate func(*T) *valgo.Validation) error {
	if len(request.Params) == 0 {
		return errors.ErrInvalidParams.WithMessagef("params are required")
	}

	if err := request.UnmarshalParams(out); err != nil {
		return errors.ErrInvalidParams.WithMessagef("failed to unmarshal params: %v", err)
	}

	if val := validate(out); !val.Valid() {
		return errors.ErrInvalidParams.WithMessagef("%v", val.Error())
	}

	return nil
}

func validateSend(params *a2a.MessageSendParams) *valgo.Validation {
	val := valgo.
		Is(valgo.String(string(params.Message.Role), "message.role").Not().Blank()).
		Is(valgo.Int(len(params.Message.Parts), "message.parts").GreaterThan(0))

	if config := params.Configuration; config != nil && config.HistoryLength != nil {
		val.Is(valgo.Int(*config.HistoryLength, "configuration.historyLength").GreaterOrEqualTo(0))
	}

	if config := params.Configuration; config != nil && config.PushNotificationConfig != nil {
		val.Is(valgo.String(config.PushNotificationConfig.URL, "configuration.pushNotificationConfig.url").Not().Blank())
	}

	return val
}

func validateQuery(params *a2a.TaskQueryParams) *valgo.Validation {
	val := valgo.Is(valgo.String(params.ID, "id").Not().Blank())

	if params.HistoryLength != nil {
		val.Is(valgo.Int(*params.HistoryLength, "historyLength").GreaterOrEqualTo(0))
	}

	return val
}

func validateTaskID(params *a2a.TaskIDParams) *valgo.Validation {
	return valgo.Is(valgo.String(params.ID, "id").Not().Blank())
}

func validatePushConfig(params *a2a.TaskPushNotificationConfig) *valgo.Validation {
	return valgo.
		Is(valgo.String(params.TaskID, "taskId").Not().Blank()).
		Is(valgo.String(params.PushNotificationConfig.URL, "pushNotificationConfig.url").Not().Blank())
}
