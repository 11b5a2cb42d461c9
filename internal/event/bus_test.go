package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()

	bus.Publish(Event{ID: "e1", Type: TypeRecordCreated, TenantID: "t1"})

	got := <-ch
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, TypeRecordCreated, got.Type)

	unsubscribe()
	_, open := <-ch
	require.False(t, open)

	// Publishing without subscribers must not block.
	bus.Publish(Event{ID: "e2", Type: TypeTrashCleared})
}

func TestInMemoryBus_DropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.bufferSize = 1
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Event{ID: "first"})
	bus.Publish(Event{ID: "second"})

	assert.Equal(t, "first", (<-ch).ID)
	assert.Empty(t, ch)
}
