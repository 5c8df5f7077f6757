package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fable/internal/config"
	"fable/internal/logging"
)

// Event names a run milestone.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event details. Known keys: run_id, data_dir, total,
// succeeded, failed, records, duration, error.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Close() error
}

// NewService builds a service for every configured transport. With nothing
// configured a no-op service is returned. A transport that cannot be set up
// is reported in the error while the others are still returned, so the
// service is never nil.
func NewService(cfg *config.Config, logger *slog.Logger) (Service, error) {
	if cfg == nil {
		return noopService{}, nil
	}
	logger = logging.NewComponentLogger(logger, "notifications")
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var (
		services []Service
		setupErr error
	)
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, newNtfyService(topic, timeout))
	}
	if url := strings.TrimSpace(cfg.Notifications.NATSURL); url != "" {
		nats, err := newNATSService(url, cfg.Notifications.NATSSubject, timeout, logger)
		if err != nil {
			setupErr = err
		} else {
			services = append(services, nats)
		}
	}

	switch len(services) {
	case 0:
		return noopService{}, setupErr
	case 1:
		return services[0], setupErr
	}
	return multiService(services), setupErr
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) Close() error {
	var errs []error
	for _, svc := range m {
		if err := svc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (noopService) Close() error { return nil }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

// render turns an event into the short human text used by ntfy.
func render(event Event, payload Payload) message {
	switch event {
	case EventRunStarted:
		return message{
			title: "Fable - Run Started",
			body:  fmt.Sprintf("Labeling %v images in %v", payload.get("total", 0), payload.get("data_dir", "?")),
			tags:  []string{"fable", "run", "started"},
		}
	case EventRunCompleted:
		failed := payload.get("failed", 0)
		title := "Fable - Run Complete"
		if fmt.Sprint(failed) != "0" {
			title = "Fable - Run Complete (with errors)"
		}
		return message{
			title: title,
			body: fmt.Sprintf("%v labeled, %v failed, %v rows written in %v",
				payload.get("succeeded", 0), failed, payload.get("records", 0), payload.get("duration", "0s")),
			tags: []string{"fable", "run", "completed"},
		}
	case EventRunFailed:
		return message{
			title:    "Fable - Run Failed",
			body:     fmt.Sprintf("Run stopped: %v", payload.get("error", "unknown")),
			tags:     []string{"fable", "error", "alert"},
			priority: "high",
		}
	case EventTest:
		return message{
			title:    "Fable - Test",
			body:     "Notification system test",
			tags:     []string{"fable", "test"},
			priority: "low",
		}
	default:
		return message{title: "Fable", body: string(event), tags: []string{"fable"}}
	}
}

func (p Payload) get(key string, fallback any) any {
	if p == nil {
		return fallback
	}
	if v, ok := p[key]; ok && v != nil {
		if d, ok := v.(time.Duration); ok {
			return d.Round(time.Second)
		}
		return v
	}
	return fallback
}
