package a2a

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
)

type recorder struct {
	mu       sync.Mutex
	auth     []string
	requests []jsonrpc.Request
}

func (rec *recorder) record(r *http.Request) jsonrpc.Request {
	var req jsonrpc.Request
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.auth = append(rec.auth, r.Header.Get("Authorization"))
	rec.requests = append(rec.requests, req)

	return req
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func completedTask(id string) *Task {
	return &Task{
		Kind:      KindTask,
		ID:        id,
		ContextID: "ctx-1",
		Status:    NewTaskStatus(TaskStateCompleted, NewTextMessage(RoleAgent, "done")),
	}
}

func sendParams(text string) MessageSendParams {
	return MessageSendParams{Message: *NewTextMessage(RoleUser, text)}
}

func TestClientSendMessage(t *testing.T) {
	rec := &recorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := rec.record(r)
		writeJSON(w, http.StatusOK, jsonrpc.NewResponse(req.ID, completedTask("task-1")))
	}))
	defer srv.Close()

	t.Run("carries the bearer token", func(t *testing.T) {
		client := NewClient(srv.URL+"/a2a", WithBearerToken("secret"))

		task, err := client.SendMessage(t.Context(), sendParams("Hello"))
		require.NoError(t, err)

		assert.Equal(t, "task-1", task.ID)
		assert.Equal(t, TaskStateCompleted, task.Status.State)
		assert.Equal(t, "Bearer secret", rec.auth[len(rec.auth)-1])
		assert.Equal(t, MethodSendMessage, rec.requests[len(rec.requests)-1].Method)
	})

	t.Run("omits the header without a token", func(t *testing.T) {
		client := NewClient(srv.URL + "/a2a")

		_, err := client.SendMessage(t.Context(), sendParams("Hello"))
		require.NoError(t, err)

		assert.Empty(t, rec.auth[len(rec.auth)-1])
	})
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		_ = json.NewDecoder(r.Body).Decode(&req)

		switch req.Method {
		case MethodGetTask:
			writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(req.ID, errors.ErrTaskNotFound))
		case MethodCancelTask:
			writeJSON(w, http.StatusPaymentRequired, jsonrpc.NewErrorResponse(req.ID, errors.ErrPaymentRequired))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/a2a")

	t.Run("returns the rpc error", func(t *testing.T) {
		task, err := client.GetTask(t.Context(), "missing", 0)

		assert.Nil(t, task)
		assert.ErrorIs(t, err, errors.ErrTaskNotFound)
	})

	t.Run("returns a status error with the rpc envelope", func(t *testing.T) {
		task, err := client.CancelTask(t.Context(), "task-1")
		assert.Nil(t, task)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusPaymentRequired, statusErr.StatusCode)
		assert.ErrorIs(t, err, errors.ErrPaymentRequired)
	})

	t.Run("returns a bare status error", func(t *testing.T) {
		_, err := client.SetPushNotificationConfig(t.Context(), TaskPushNotificationConfig{TaskID: "task-1"})

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Nil(t, statusErr.RPC)
	})
}

func TestClientStreamMessage(t *testing.T) {
	rec := &recorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := rec.record(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		events := []any{
			&Task{Kind: KindTask, ID: "task-1", ContextID: "ctx-1", Status: NewTaskStatus(TaskStateSubmitted, nil)},
			NewStatusUpdateEvent("task-1", "ctx-1", TaskStateWorking, NewTextMessage(RoleAgent, "1/2"), false),
			NewStatusUpdateEvent("task-1", "ctx-1", TaskStateCompleted, NewTextMessage(RoleAgent, "done"), true),
			NewStatusUpdateEvent("task-1", "ctx-1", TaskStateWorking, NewTextMessage(RoleAgent, "late"), false),
		}

		fmt.Fprint(w, ": heartbeat\n\n")

		for _, event := range events {
			payload, _ := json.Marshal(jsonrpc.NewResponse(req.ID, event))
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/a2a", WithBearerToken("secret"))

	var seen []*StreamEvent

	err := client.StreamMessage(t.Context(), sendParams("stream"), func(event *StreamEvent) {
		seen = append(seen, event)
	})

	require.NoError(t, err)
	require.Len(t, seen, 3)

	assert.Equal(t, TaskStateSubmitted, seen[0].State())
	assert.Equal(t, TaskStateWorking, seen[1].State())
	assert.True(t, seen[2].Final())
	assert.Equal(t, TaskStateCompleted, seen[2].State())
	assert.Equal(t, "Bearer secret", rec.auth[0])
	assert.Equal(t, MethodStreamMessage, rec.requests[0].Method)
}

func TestClientStreamRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, jsonrpc.NewErrorResponse(nil, errors.ErrUnauthorized))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).StreamMessage(t.Context(), sendParams("stream"), func(*StreamEvent) {})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestClientFetchAgentCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/agent.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, AgentCard{Name: "payments", URL: "http://localhost/a2a", Version: "1.0.0"})
	}))
	defer srv.Close()

	card, err := NewClient(srv.URL + "/a2a").FetchAgentCard(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "payments", card.Name)
}
