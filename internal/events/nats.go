package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// NATSPublisher publishes events to core NATS on
//
//	{prefix}.{session_id}.{type}
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the server at url.
func NewNATSPublisher(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("designd"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// New returns a NATS publisher when events are enabled and Nop otherwise.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, logger)
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, e.SessionID, e.Type)
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
