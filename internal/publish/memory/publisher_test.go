package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher_RecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "agent.created", map[string]string{"agent_id": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = pub.Publish(context.Background(), "agent.deleted", map[string]string{"agent_id": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "agent.created", msgs[0].Topic)
	require.Equal(t, "agent.deleted", msgs[1].Topic)
}
