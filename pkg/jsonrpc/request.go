package jsonrpc

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // accepts string | number | null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

/*
NewRequest marshals params into a request envelope. The id is encoded as a
JSON string so it survives the round trip unchanged.
*/
func NewRequest(id string, method string, params any) (*Request, error) {
	rawID, err := json.Marshal(id)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal request id: %w", err)
	}

	rawParams, err := json.Marshal(params)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	return &Request{
		JSONRPC: Version,
		ID:      rawID,
		Method:  method,
		Params:  rawParams,
	}, nil
}

/*
UnmarshalParams decodes the request params into v.
*/
func (request *Request) UnmarshalParams(v any) error {
	if len(request.Params) == 0 {
		return fmt.Errorf("missing params for %s", request.Method)
	}

	return json.Unmarshal(request.Params, v)
}
