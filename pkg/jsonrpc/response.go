package jsonrpc

import (
	"encoding/json"

	"github.com/theapemachine/a2a-payments/pkg/errors"
)

type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

/*
RawResponse is the client-side view of a Response, leaving the result
undecoded until the caller knows what to expect.
*/
type RawResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

func NewResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Result: result}
}

func NewErrorResponse(id json.RawMessage, err *errors.RpcError) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Error: err}
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}

	return id
}
