package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/resilience"
)

// TelemetrySubjectPrefix is the subject namespace for position reports.
// Reports for one vehicle are published on TelemetrySubjectPrefix + id.
const TelemetrySubjectPrefix = "utm.telemetry."

// TelemetrySubject returns the subject carrying reports for vehicleID.
func TelemetrySubject(vehicleID string) string {
	return TelemetrySubjectPrefix + vehicleID
}

// NATSConfig holds configuration for the NATS ingest.
type NATSConfig struct {
	URL string

	// Name is the client connection name.
	// Default: "utm-ingest"
	Name string

	// Subject is the subscription subject.
	// Default: "utm.telemetry.>"
	Subject string

	// Queue, when set, joins a queue group so several processes share the
	// stream.
	Queue string

	Dispatcher *Dispatcher
	Throttle   *Throttle

	// Executor guards the initial connection. Optional.
	Executor *resilience.Executor

	Logger zerolog.Logger
}

// IngestStats are cumulative ingest counters.
type IngestStats struct {
	Received   int64
	Malformed  int64
	Throttled  int64
	Dispatched int64
}

// NATSIngest subscribes to vehicle telemetry on NATS and applies it through
// a Dispatcher. Core NATS delivers one subscription's messages in order, so
// each vehicle's reports are applied in publish order.
type NATSIngest struct {
	cfg    NATSConfig
	nc     *nats.Conn
	sub    *nats.Subscription
	logger zerolog.Logger

	received, malformed, throttled, dispatched atomic.Int64
}

// ConnectNATS dials the server and returns an ingest ready to Start.
func ConnectNATS(ctx context.Context, cfg NATSConfig) (*NATSIngest, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("nats ingest: dispatcher is required")
	}
	if cfg.Name == "" {
		cfg.Name = "utm-ingest"
	}
	if cfg.Subject == "" {
		cfg.Subject = TelemetrySubjectPrefix + ">"
	}
	logger := cfg.Logger.With().Str("component", "nats_ingest").Logger()

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	var nc *nats.Conn
	dial := func(context.Context) error {
		var err error
		nc, err = nats.Connect(cfg.URL, opts...)
		return err
	}

	var err error
	if cfg.Executor != nil {
		err = cfg.Executor.Do(ctx, dial)
	} else {
		err = dial(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSIngest{cfg: cfg, nc: nc, logger: logger}, nil
}

// Start subscribes and returns once the subscription is registered with the
// server. Messages are processed until ctx is done or Close is called.
func (n *NATSIngest) Start(ctx context.Context) error {
	handler := func(msg *nats.Msg) {
		n.handle(ctx, msg.Subject, msg.Data)
	}

	var err error
	if n.cfg.Queue != "" {
		n.sub, err = n.nc.QueueSubscribe(n.cfg.Subject, n.cfg.Queue, handler)
	} else {
		n.sub, err = n.nc.Subscribe(n.cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.cfg.Subject, err)
	}
	if err := n.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}

	n.logger.Info().Str("subject", n.cfg.Subject).Str("queue", n.cfg.Queue).Msg("nats ingest started")

	go func() {
		<-ctx.Done()
		_ = n.sub.Unsubscribe()
	}()
	return nil
}

func (n *NATSIngest) handle(ctx context.Context, subject string, data []byte) {
	n.received.Add(1)

	var msg PositionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		n.malformed.Add(1)
		n.logger.Warn().Err(err).Str("subject", subject).Msg("malformed telemetry")
		return
	}
	if msg.VehicleID == "" {
		msg.VehicleID = strings.TrimPrefix(subject, TelemetrySubjectPrefix)
	}
	if msg.VehicleID == "" || msg.VehicleID == subject {
		n.malformed.Add(1)
		n.logger.Warn().Str("subject", subject).Msg("telemetry without vehicle id")
		return
	}

	if n.cfg.Throttle != nil && !n.cfg.Throttle.Allow(msg.VehicleID) {
		n.throttled.Add(1)
		return
	}

	if _, err := n.cfg.Dispatcher.Apply(ctx, []PositionMessage{msg}); err != nil {
		n.logger.Warn().Err(err).Str("vehicle_id", msg.VehicleID).Msg("telemetry not applied")
		return
	}
	n.dispatched.Add(1)
}

// Stats returns the cumulative ingest counters.
func (n *NATSIngest) Stats() IngestStats {
	return IngestStats{
		Received:   n.received.Load(),
		Malformed:  n.malformed.Load(),
		Throttled:  n.throttled.Load(),
		Dispatched: n.dispatched.Load(),
	}
}

// Conn exposes the underlying connection.
func (n *NATSIngest) Conn() *nats.Conn { return n.nc }

// Close drains the subscription and closes the connection.
func (n *NATSIngest) Close() error {
	if n.nc == nil {
		return nil
	}
	err := n.nc.Drain()
	if err != nil {
		n.nc.Close()
	}
	return err
}

// PublishPosition publishes msg on its vehicle subject.
func PublishPosition(nc *nats.Conn, msg PositionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	return nc.Publish(TelemetrySubject(msg.VehicleID), data)
}
