package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-http-utils/headers"
	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/google/uuid"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
	"github.com/theapemachine/a2a-payments/pkg/sse"
)

/*
StatusError reports a non-2xx HTTP response. RPC holds the JSON-RPC error
envelope when the server sent one.
*/
type StatusError struct {
	StatusCode int
	RPC        *errors.RpcError
}

func (err *StatusError) Error() string {
	if err.RPC != nil {
		return fmt.Sprintf("http status %d: %s", err.StatusCode, err.RPC.Message)
	}

	return fmt.Sprintf("http status %d", err.StatusCode)
}

func (err *StatusError) Unwrap() error {
	if err.RPC == nil {
		return nil
	}

	return err.RPC
}

/*
TokenGrant is returned by the development ledger's token endpoint.
*/
type TokenGrant struct {
	AccessToken string `json:"accessToken"`
	Subscriber  string `json:"subscriber"`
	Balance     int    `json:"balance"`
}

/*
Client represents an A2A protocol client bound to a single JSON-RPC endpoint.
Failures are logged and returned as errors alongside a nil result; the
client never panics on a bad response.
*/
type Client struct {
	baseURL string
	token   string
	conn    *fiberClient.Client
	http    *http.Client
}

type ClientOption func(*Client)

/*
WithBearerToken makes every request carry an Authorization header.
*/
func WithBearerToken(token string) ClientOption {
	return func(client *Client) {
		client.token = token
	}
}

/*
WithHTTPClient replaces the client used for streaming requests.
*/
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		client.http = httpClient
	}
}

/*
NewClient creates a new A2A client.
*/
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		conn:    fiberClient.New(),
		http:    &http.Client{},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

/*
SendMessage calls message/send and returns the resulting task snapshot.
*/
func (client *Client) SendMessage(ctx context.Context, params MessageSendParams) (*Task, error) {
	var raw json.RawMessage

	if err := client.call(ctx, MethodSendMessage, params, &raw); err != nil {
		return nil, err
	}

	event, err := DecodeEvent(raw)

	if err != nil {
		log.Error("failed to decode send result", "error", err)
		return nil, err
	}

	if event.Task == nil {
		return nil, fmt.Errorf("unexpected %s result from %s", event.Kind, MethodSendMessage)
	}

	return event.Task, nil
}

/*
StreamMessage calls message/stream and hands every decoded event to onEvent.
It returns once an event is final, the server closes the stream, or ctx is
done.
*/
func (client *Client) StreamMessage(
	ctx context.Context, params MessageSendParams, onEvent func(*StreamEvent),
) error {
	req, err := jsonrpc.NewRequest(uuid.NewString(), MethodStreamMessage, params)

	if err != nil {
		return err
	}

	body, err := json.Marshal(req)

	if err != nil {
		return fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL, bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}

	for key, value := range client.headers(true) {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.http.Do(httpReq)

	if err != nil {
		log.Error("stream request failed", "error", err)
		return fmt.Errorf("%s: %w", MethodStreamMessage, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(resp.Body)
		statusErr := &StatusError{StatusCode: resp.StatusCode, RPC: decodeRPCError(payload)}
		log.Error("stream request rejected", "status", resp.StatusCode, "error", statusErr)
		return statusErr
	}

	if !strings.HasPrefix(resp.Header.Get(headers.ContentType), "text/event-stream") {
		payload, _ := io.ReadAll(resp.Body)

		if rpcErr := decodeRPCError(payload); rpcErr != nil {
			log.Error("stream request failed", "error", rpcErr)
			return rpcErr
		}

		return fmt.Errorf("unexpected content type %q", resp.Header.Get(headers.ContentType))
	}

	reader := sse.NewReader(resp.Body)

	for {
		frame, err := reader.Next()

		if err == io.EOF {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("failed to read stream: %w", err)
		}

		if len(frame.Data) == 0 {
			continue
		}

		var rpcRes jsonrpc.RawResponse

		if err := json.Unmarshal(frame.Data, &rpcRes); err != nil {
			log.Warn("skipping malformed frame", "error", err)
			continue
		}

		if rpcRes.Error != nil {
			log.Error("stream reported an error", "error", rpcRes.Error)
			return rpcRes.Error
		}

		event, err := DecodeEvent(rpcRes.Result)

		if err != nil {
			log.Warn("skipping undecodable event", "error", err)
			continue
		}

		onEvent(event)

		if event.Final() {
			return nil
		}
	}
}

/*
GetTask calls tasks/get. A non-positive historyLength returns the full
history.
*/
func (client *Client) GetTask(ctx context.Context, taskID string, historyLength int) (*Task, error) {
	params := TaskQueryParams{ID: taskID}

	if historyLength > 0 {
		params.HistoryLength = &historyLength
	}

	task := &Task{}

	if err := client.call(ctx, MethodGetTask, params, task); err != nil {
		return nil, err
	}

	return task, nil
}

/*
CancelTask calls tasks/cancel.
*/
func (client *Client) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	task := &Task{}

	if err := client.call(ctx, MethodCancelTask, TaskIDParams{ID: taskID}, task); err != nil {
		return nil, err
	}

	return task, nil
}

/*
SetPushNotificationConfig calls tasks/pushNotificationConfig/set.
*/
func (client *Client) SetPushNotificationConfig(
	ctx context.Context, config TaskPushNotificationConfig,
) (*TaskPushNotificationConfig, error) {
	out := &TaskPushNotificationConfig{}

	if err := client.call(ctx, MethodSetPushConfig, config, out); err != nil {
		return nil, err
	}

	return out, nil
}

/*
FetchAgentCard retrieves the agent card from the well-known path on the
endpoint's host.
*/
func (client *Client) FetchAgentCard(ctx context.Context) (*AgentCard, error) {
	card := &AgentCard{}

	if err := client.get(ctx, "/.well-known/agent.json", card); err != nil {
		return nil, err
	}

	return card, nil
}

/*
RequestToken asks the development ledger for an access token.
*/
func (client *Client) RequestToken(ctx context.Context, subscriber string) (*TokenGrant, error) {
	target, err := client.resolve("/payments/token")

	if err != nil {
		return nil, err
	}

	res, err := client.conn.Post(target, fiberClient.Config{
		Ctx:    ctx,
		Header: client.headers(false),
		Body:   map[string]string{"subscriber": subscriber},
	})

	if err != nil {
		log.Error("token request failed", "error", err)
		return nil, err
	}

	defer res.Close()

	if res.StatusCode() < http.StatusOK || res.StatusCode() >= http.StatusMultipleChoices {
		statusErr := &StatusError{StatusCode: res.StatusCode(), RPC: decodeRPCError(res.Body())}
		log.Error("token request rejected", "status", res.StatusCode())
		return nil, statusErr
	}

	grant := &TokenGrant{}

	if err := json.Unmarshal(res.Body(), grant); err != nil {
		return nil, fmt.Errorf("failed to decode token grant: %w", err)
	}

	return grant, nil
}

func (client *Client) call(ctx context.Context, method string, params any, result any) error {
	req, err := jsonrpc.NewRequest(uuid.NewString(), method, params)

	if err != nil {
		return err
	}

	res, err := client.conn.Post(client.baseURL, fiberClient.Config{
		Ctx:    ctx,
		Header: client.headers(false),
		Body:   req,
	})

	if err != nil {
		log.Error("request failed", "method", method, "error", err)
		return fmt.Errorf("%s: %w", method, err)
	}

	defer res.Close()

	if res.StatusCode() < http.StatusOK || res.StatusCode() >= http.StatusMultipleChoices {
		statusErr := &StatusError{StatusCode: res.StatusCode(), RPC: decodeRPCError(res.Body())}
		log.Error("request rejected", "method", method, "status", res.StatusCode(), "error", statusErr)
		return statusErr
	}

	var rpcRes jsonrpc.RawResponse

	if err := json.Unmarshal(res.Body(), &rpcRes); err != nil {
		log.Error("malformed response", "method", method, "error", err)
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if rpcRes.Error != nil {
		log.Error("request returned an error", "method", method, "error", rpcRes.Error)
		return rpcRes.Error
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(rpcRes.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	return nil
}

func (client *Client) get(ctx context.Context, path string, result any) error {
	target, err := client.resolve(path)

	if err != nil {
		return err
	}

	res, err := client.conn.Get(target, fiberClient.Config{
		Ctx:    ctx,
		Header: client.headers(false),
	})

	if err != nil {
		log.Error("request failed", "path", path, "error", err)
		return err
	}

	defer res.Close()

	if res.StatusCode() != http.StatusOK {
		log.Error("request rejected", "path", path, "status", res.StatusCode())
		return &StatusError{StatusCode: res.StatusCode()}
	}

	return json.Unmarshal(res.Body(), result)
}

/*
resolve maps an absolute path onto the scheme and host of the endpoint.
*/
func (client *Client) resolve(path string) (string, error) {
	base, err := url.Parse(client.baseURL)

	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", client.baseURL, err)
	}

	base.Path = path
	base.RawQuery = ""

	return base.String(), nil
}

func (client *Client) headers(stream bool) map[string]string {
	out := map[string]string{
		headers.ContentType: "application/json",
		headers.Accept:      "application/json",
	}

	if stream {
		out[headers.Accept] = "text/event-stream"
	}

	if client.token != "" {
		out[headers.Authorization] = "Bearer " + client.token
	}

	return out
}

func decodeRPCError(payload []byte) *errors.RpcError {
	var rpcRes jsonrpc.RawResponse

	if err := json.Unmarshal(payload, &rpcRes); err != nil {
		return nil
	}

	return rpcRes.Error
}
