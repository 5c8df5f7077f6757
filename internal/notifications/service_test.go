package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fable/internal/config"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestNewServiceReturnsNoopWhenUnconfigured(t *testing.T) {
	cfg := config.Default()
	svc, err := NewService(&cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.Publish(context.Background(), EventRunStarted, nil); err != nil {
		t.Fatalf("noop publish returned %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("noop close returned %v", err)
	}
}

func TestNtfyFormatsRunEvents(t *testing.T) {
	tests := []struct {
		name           string
		event          Event
		payload        Payload
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:        "run started",
			event:       EventRunStarted,
			payload:     Payload{"total": 10, "data_dir": "/data/faces"},
			expectTitle: "Fable - Run Started",
			expectBody:  "Labeling 10 images in /data/faces",
			expectTags:  "fable,run,started",
		},
		{
			name:        "run completed clean",
			event:       EventRunCompleted,
			payload:     Payload{"succeeded": 10, "failed": 0, "records": 12, "duration": 90500 * time.Millisecond},
			expectTitle: "Fable - Run Complete",
			expectBody:  "10 labeled, 0 failed, 12 rows written in 1m31s",
			expectTags:  "fable,run,completed",
		},
		{
			name:        "run completed with errors",
			event:       EventRunCompleted,
			payload:     Payload{"succeeded": 8, "failed": 2, "records": 8, "duration": time.Second},
			expectTitle: "Fable - Run Complete (with errors)",
			expectBody:  "8 labeled, 2 failed, 8 rows written in 1s",
			expectTags:  "fable,run,completed",
		},
		{
			name:           "run failed",
			event:          EventRunFailed,
			payload:        Payload{"error": "store: disk I/O error"},
			expectTitle:    "Fable - Run Failed",
			expectBody:     "Run stopped: store: disk I/O error",
			expectTags:     "fable,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, requests := newNtfyServer(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL + "/fable"
			svc, err := NewService(&cfg, nil)
			if err != nil {
				t.Fatalf("NewService: %v", err)
			}
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("publish: %v", err)
			}
			got := <-requests
			if got.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.body != tc.expectBody {
				t.Fatalf("body = %q, want %q", got.body, tc.expectBody)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got.tags, tc.expectTags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", got.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	svc := newNtfyService(srv.URL, time.Second)
	err := svc.Publish(context.Background(), EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestNtfyBareTopicUsesPublicServer(t *testing.T) {
	svc := newNtfyService("my-fable-runs", time.Second)
	if svc.endpoint != "https://ntfy.sh/my-fable-runs" {
		t.Fatalf("unexpected endpoint %q", svc.endpoint)
	}
}

func TestNATSConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	cfg := config.Default()
	cfg.Notifications.NATSURL = "nats://" + addr
	cfg.Notifications.RequestTimeout = 1
	svc, err := NewService(&cfg, nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
}

func TestNtfyStillPublishesWhenNATSUnavailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	srv, requests := newNtfyServer(t, http.StatusOK)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.NATSURL = "nats://" + addr
	cfg.Notifications.RequestTimeout = 1
	svc, err := NewService(&cfg, nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if svc == nil {
		t.Fatal("expected ntfy service to survive")
	}
	defer svc.Close()

	if err := svc.Publish(context.Background(), EventTest, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case req := <-requests:
		if req.title != "Fable - Test" {
			t.Fatalf("unexpected title %q", req.title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ntfy did not receive the event")
	}
}

func TestEncodeEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := encodeEnvelope(EventRunCompleted, Payload{
		"run_id":    "run-42",
		"succeeded": 3,
		"duration":  2 * time.Second,
	}, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["event"] != "run_completed" || decoded["run_id"] != "run-42" {
		t.Fatalf("unexpected envelope %s", data)
	}
	if decoded["time"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected time %v", decoded["time"])
	}
	payload := decoded["payload"].(map[string]any)
	if payload["duration"] != "2s" || payload["succeeded"] != float64(3) {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

type stubService struct {
	published []Event
	err       error
	closed    bool
}

func (s *stubService) Publish(_ context.Context, event Event, _ Payload) error {
	s.published = append(s.published, event)
	return s.err
}

func (s *stubService) Close() error {
	s.closed = true
	return nil
}

func TestMultiServiceFansOut(t *testing.T) {
	first := &stubService{err: errors.New("offline")}
	second := &stubService{}
	svc := multiService{first, second}

	err := svc.Publish(context.Background(), EventRunStarted, nil)
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(second.published) != 1 {
		t.Fatal("second service should still receive the event")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !first.closed || !second.closed {
		t.Fatal("expected every service to be closed")
	}
}
