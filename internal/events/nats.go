package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

// NATSConfig configures NewNATSPublisher.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSPublisher encodes events with msgpack and publishes them on core NATS
// under "<prefix>.<group>.<type>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to cfg.URL.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "mudae"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject e is published on.
func Subject(prefix string, e Event) string {
	group := e.Group
	if group == "" {
		group = "global"
	}
	// NATS treats dots and whitespace as token separators.
	group = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(group)
	return prefix + "." + group + "." + string(e.Type)
}

// Publish sends e. ctx only bounds the encode step; core NATS publishing
// is buffered and does not block on the server.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, e), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
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
