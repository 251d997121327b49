package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/push"
)

type fakeFetcher struct {
	tasks map[string]*a2a.Task
}

func (fetcher *fakeFetcher) GetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	task, ok := fetcher.tasks[taskID]

	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	return task, nil
}

func postWebhook(srv *WebhookServer, body string) (*http.Response, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(push.TokenHeader, "verify-me")

	res, err := srv.App().Test(req)
	So(err, ShouldBeNil)

	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)

	return res, out
}

func TestWebhookServer(t *testing.T) {
	Convey("Given a webhook receiver that can reach the agent", t, func() {
		srv := NewWebhookServer(&fakeFetcher{tasks: map[string]*a2a.Task{
			"task-1": {ID: "task-1", Status: a2a.NewTaskStatus(a2a.TaskStateCompleted, nil)},
		}})

		Convey("When a notification names a known task", func() {
			res, body := postWebhook(srv, `{"kind":"status-update","taskId":"task-1","final":true}`)

			Convey("Then it is acknowledged with the fetched state", func() {
				So(res.StatusCode, ShouldEqual, http.StatusOK)
				So(body["received"], ShouldEqual, true)
				So(body["taskId"], ShouldEqual, "task-1")
				So(body["state"], ShouldEqual, string(a2a.TaskStateCompleted))

				received := srv.Received()
				So(received, ShouldHaveLength, 1)
				So(received[0].Token, ShouldEqual, "verify-me")
			})
		})

		Convey("When the task cannot be fetched", func() {
			res, body := postWebhook(srv, `{"taskId":"task-2"}`)

			Convey("Then receipt is still acknowledged", func() {
				So(res.StatusCode, ShouldEqual, http.StatusOK)
				So(body["received"], ShouldEqual, true)
				So(body["state"], ShouldEqual, "")
			})
		})

		Convey("When the notification has no task id", func() {
			res, _ := postWebhook(srv, `{"kind":"status-update"}`)

			Convey("Then it is rejected", func() {
				So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(srv.Received(), ShouldBeEmpty)
			})
		})
	})
}
