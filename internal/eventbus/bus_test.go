package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	Publish(b, AlertSent, AlertEvent{EventID: "c1"})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		assert.Equal(t, AlertSent, ev.Type)
		assert.False(t, ev.Time.IsZero())
		require.IsType(t, AlertEvent{}, ev.Data)
		assert.Equal(t, "c1", ev.Data.(AlertEvent).EventID)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	Publish(b, SessionOpened, SessionEvent{SessionID: "1"})
	Publish(b, SessionOpened, SessionEvent{SessionID: "2"})

	assert.Equal(t, uint64(1), Dropped(b))
	ev := <-ch
	assert.Equal(t, "1", ev.Data.(SessionEvent).SessionID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	Publish(b, SessionFailed, nil)
}

func TestPublishNilBus(t *testing.T) {
	assert.NotPanics(t, func() { Publish(nil, AlertSkipped, nil) })
}
