package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/roundtable/pkg/models"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus("sess-1")
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(IterationStart("sess-1", 1, 5))

	select {
	case ev := <-ch:
		assert.Equal(t, KindIterationStart, ev.Kind)
		assert.Equal(t, 1, ev.Payload["iteration"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_NoHistoricalReplay(t *testing.T) {
	b := NewBus("sess-1")
	b.Publish(SessionCreated("sess-1", "Doc", models.DefaultSessionConfig()))

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(IterationStart("sess-1", 1, 5))

	ev := <-ch
	assert.Equal(t, KindIterationStart, ev.Kind, "subscriber must not see events published before it joined")
}

func TestBus_MultipleSubscribersEachGetEveryEvent(t *testing.T) {
	b := NewBus("sess-1")
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(IterationStart("sess-1", 1, 5))

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, KindIterationStart, ev1.Kind)
	assert.Equal(t, KindIterationStart, ev2.Kind)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus("sess-1")
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_PublishNeverBlocksOnFullQueue(t *testing.T) {
	tiny := NewBus("sess-1")
	tiny.queueSize = 1
	ch2, unsub2 := tiny.Subscribe()
	defer unsub2()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			tiny.Publish(IterationStart("sess-1", i, 10))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	// Drain whatever made it through; a warning log event should appear.
	var sawWarning bool
drain:
	for {
		select {
		case ev, ok := <-ch2:
			if !ok {
				break drain
			}
			if ev.Kind == KindLog && ev.Payload["message"] == "events dropped" {
				sawWarning = true
			}
		default:
			break drain
		}
	}
	assert.True(t, sawWarning, "expected a synthetic 'events dropped' log event once the queue overflowed")
}

func TestBus_Close(t *testing.T) {
	b := NewBus("sess-1")
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestCriticReviewComplete_CapsTopIssuesAtThree(t *testing.T) {
	issues := []models.Issue{
		{Description: "one"}, {Description: "two"}, {Description: "three"}, {Description: "four"},
	}
	ev := CriticReviewComplete("sess-1", "Alice", 4, models.SeverityCounts{}, issues, models.TokenCounts{})
	top := ev.Payload["top_issues"].([]models.Issue)
	assert.Len(t, top, 3)
}

func TestRegistry_CreateGetRelease(t *testing.T) {
	r := NewRegistry()
	bus := r.Create("sess-1")
	require.NotNil(t, bus)
	assert.Same(t, bus, r.Get("sess-1"))

	r.Release("sess-1")
	assert.Nil(t, r.Get("sess-1"))
}
