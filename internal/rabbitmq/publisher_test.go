package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/observability"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "chat.client")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "client_events.realtime", observability.EventEnvelope{EventName: "ws_connect"}, nil))
	require.NoError(t, p.Close())
}
