package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	hub := NewHub(8)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(KindTaskDispatch, map[string]any{"task": "system-info"})

	select {
	case ev := <-ch:
		assert.Equal(t, KindTaskDispatch, ev.Kind)
		assert.Equal(t, int64(1), ev.ID)

		var data map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "system-info", data["task"])
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	hub := NewHub(8)

	ch, cancel := hub.Subscribe()
	cancel()
	cancel() // idempotent

	hub.Publish(KindWorkerExited, nil)

	_, open := <-ch
	assert.False(t, open)
}

func TestReplayReturnsEventsAfterLastID(t *testing.T) {
	hub := NewHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish(KindWorkerState, nil)
	}

	all := hub.Replay(0)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(5), all[4].ID)

	tail := hub.Replay(3)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].ID)
	assert.Equal(t, int64(5), tail[1].ID)
}

func TestRingDropsOldestWhenFull(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(KindWorkerState, nil)
	}

	got := hub.Replay(0)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(5), got[2].ID)
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	hub := NewHub(4)
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More events than the subscriber channel can hold; Publish must
		// drop rather than stall.
		for i := 0; i < 200; i++ {
			hub.Publish(KindTaskComplete, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestPublishSurvivesUnmarshalablePayload(t *testing.T) {
	hub := NewHub(4)
	hub.Publish(KindTaskFailed, map[string]any{"bad": make(chan int)})

	got := hub.Replay(0)
	require.Len(t, got, 1)
	assert.JSONEq(t, "{}", string(got[0].Data))
}
