package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Pub/Sub command kinds.
const (
	KindPosition             = "position"
	KindBatch                = "batch"
	KindExpireAuthorizations = "expire_authorizations"
)

// ErrUnknownKind is returned for commands the handler does not recognize.
var ErrUnknownKind = errors.New("unknown command kind")

// Maintainer runs authorization upkeep.
type Maintainer interface {
	ExpireAuthorizations() int
}

// Command is the JSON envelope carried on the Pub/Sub subscription.
type Command struct {
	Kind      string            `json:"kind"`
	Position  *PositionMessage  `json:"position,omitempty"`
	Positions []PositionMessage `json:"positions,omitempty"`
}

// PubSubHandler consumes telemetry and maintenance commands from Pub/Sub.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	throttle         *Throttle
	maintainer       Maintainer
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Throttle         *Throttle
	Maintainer       Maintainer
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a handler with a live Pub/Sub client.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	h := newPubSubHandler(cfg)
	h.client = client
	h.subscriber = subscriber
	return h, nil
}

func newPubSubHandler(cfg PubSubConfig) *PubSubHandler {
	return &PubSubHandler{
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		throttle:         cfg.Throttle,
		maintainer:       cfg.Maintainer,
		logger:           cfg.Logger.With().Str("component", "pubsub_ingest").Logger(),
	}
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	err := h.process(ctx, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrUnknownKind), isDecodeError(err):
		// Redelivery cannot fix these.
		logger.Warn().Err(err).Msg("dropping pubsub message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("pubsub message failed")
		msg.Nack()
	}
}

type decodeError struct{ err error }

func (e decodeError) Error() string { return "decode command: " + e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de decodeError
	return errors.As(err, &de)
}

// process applies one command payload.
func (h *PubSubHandler) process(ctx context.Context, data []byte) error {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return decodeError{err: err}
	}

	switch cmd.Kind {
	case KindPosition:
		if cmd.Position == nil {
			return decodeError{err: errors.New("position command without position")}
		}
		return h.dispatch(ctx, []PositionMessage{*cmd.Position})
	case KindBatch:
		return h.dispatch(ctx, cmd.Positions)
	case KindExpireAuthorizations:
		if h.maintainer == nil {
			return nil
		}
		n := h.maintainer.ExpireAuthorizations()
		h.logger.Info().Int("expired", n).Msg("authorizations expired")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, cmd.Kind)
	}
}

func (h *PubSubHandler) dispatch(ctx context.Context, msgs []PositionMessage) error {
	if h.throttle != nil {
		kept := msgs[:0:0]
		for _, m := range msgs {
			if h.throttle.Allow(m.VehicleID) {
				kept = append(kept, m)
			}
		}
		msgs = kept
	}
	if len(msgs) == 0 {
		return nil
	}
	_, err := h.dispatcher.Apply(ctx, msgs)
	return err
}
