package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/events"
	"github.com/clenoble/sovereign/pkg/types"
)

func TestEmitDeliversPayload(t *testing.T) {
	e := events.NewEmitter(4)
	e.Emit(events.KindChatMessage, events.ChatMessage{Text: "hello"})

	ev := <-e.Events()
	assert.Equal(t, events.KindChatMessage, ev.Kind)
	assert.NotEmpty(t, ev.ID)
	require.IsType(t, events.ChatMessage{}, ev.Payload)
	assert.Equal(t, "hello", ev.Payload.(events.ChatMessage).Text)
}

func TestEmitDropsOldestOnFullBuffer(t *testing.T) {
	e := events.NewEmitter(2)
	e.Emit(events.KindChatMessage, events.ChatMessage{Text: "one"})
	e.Emit(events.KindChatMessage, events.ChatMessage{Text: "two"})
	e.Emit(events.KindChatMessage, events.ChatMessage{Text: "three"})

	first := <-e.Events()
	second := <-e.Events()
	assert.Equal(t, "two", first.Payload.(events.ChatMessage).Text)
	assert.Equal(t, "three", second.Payload.(events.ChatMessage).Text)
}

func TestEmitNeverBlocksCaller(t *testing.T) {
	e := events.NewEmitter(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			e.Emit(events.KindBubbleStateChanged, events.BubbleStateChanged{State: types.BubbleIdle})
		}
		close(done)
	}()
	<-done
}
