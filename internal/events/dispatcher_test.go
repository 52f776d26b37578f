package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var got []string
	d.Subscribe(EventUserActivated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.UserID)
		return nil
	})
	d.Subscribe(EventUserActivated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.UserID)
		return nil
	})
	d.Subscribe(EventUserLoggedIn, func(context.Context, Event) error {
		got = append(got, "wrong")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventUserActivated, "u1", nil)))
	assert.Equal(t, []string{"first:u1", "second:u1"}, got)
}

func TestDispatcherLogsHandlerErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	called := false
	d.Subscribe(EventUserLoggedOut, func(context.Context, Event) error { return errors.New("boom") })
	d.Subscribe(EventUserLoggedOut, func(context.Context, Event) error { called = true; return nil })

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventUserLoggedOut, "u1", nil)))
	assert.True(t, called)
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())
}
