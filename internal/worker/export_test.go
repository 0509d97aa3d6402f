package worker

import "context"

// NewOfflinePubSubHandler builds a handler without a Pub/Sub client.
func NewOfflinePubSubHandler(cfg PubSubConfig) *PubSubHandler {
	return newPubSubHandler(cfg)
}

func (h *PubSubHandler) Process(ctx context.Context, data []byte) error {
	return h.process(ctx, data)
}
