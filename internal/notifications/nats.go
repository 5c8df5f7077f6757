package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"fable/internal/logging"
)

// envelope is the JSON document published on the NATS subject.
type envelope struct {
	Event   Event     `json:"event"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id,omitempty"`
	Payload Payload   `json:"payload,omitempty"`
}

type natsService struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func newNATSService(url, subject string, timeout time.Duration, logger *slog.Logger) (*natsService, error) {
	nc, err := nats.Connect(url,
		nats.Name("fable"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &natsService{nc: nc, subject: subject, timeout: timeout}, nil
}

func encodeEnvelope(event Event, payload Payload, now time.Time) ([]byte, error) {
	env := envelope{Event: event, Time: now.UTC(), Payload: payload}
	if payload != nil {
		if id, ok := payload["run_id"].(string); ok {
			env.RunID = id
		}
		if d, ok := payload["duration"].(time.Duration); ok {
			cp := make(Payload, len(payload))
			for k, v := range payload {
				cp[k] = v
			}
			cp["duration"] = d.String()
			env.Payload = cp
		}
	}
	return json.Marshal(env)
}

func (n *natsService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, err := encodeEnvelope(event, payload, time.Now())
	if err != nil {
		return fmt.Errorf("encode nats event: %w", err)
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish nats event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats event: %w", err)
	}
	return nil
}

func (n *natsService) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
