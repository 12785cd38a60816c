package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEncodedMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run-a", map[string]string{"title": "Аэлита"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "run-a", []string{"Фантастика"})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "memory-1", msgs[0].ID)
	assert.Equal(t, "run-a", msgs[0].Key)
	assert.JSONEq(t, `{"title":"Аэлита"}`, string(msgs[0].Data))

	var genres []string
	require.NoError(t, msgs[1].Decode(&genres))
	assert.Equal(t, []string{"Фантастика"}, genres)

	msgs[0].Key = "modified"
	assert.Equal(t, "run-a", pub.Messages()[0].Key, "Messages() must return a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	_, err := pub.Publish(context.Background(), "k", "v")
	require.EqualError(t, err, "unavailable")
	assert.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "k", "v")
	require.NoError(t, err)
	assert.Len(t, pub.Messages(), 1)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "k", func() {})
	require.ErrorContains(t, err, "marshal payload")
	assert.Empty(t, pub.Messages())
}

func TestDecodeReportsBadData(t *testing.T) {
	t.Parallel()

	var v map[string]any
	err := PublishedMessage{ID: "memory-9", Data: []byte("{")}.Decode(&v)
	require.ErrorContains(t, err, "decode message memory-9")
}
