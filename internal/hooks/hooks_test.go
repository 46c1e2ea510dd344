package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventHarvestStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventHarvestStart, p.Event)
		assert.False(t, p.Time.IsZero())
		return nil
	})

	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventRecordFetched, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventRecordFetched, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventRecordFetched, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventRecordCommitted, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventRecordCommitted, map[string]any{
		"harvester": "h1",
		"record":    "rec-1",
	})

	assert.Equal(t, "h1", gotData["harvester"])
	assert.Equal(t, "rec-1", gotData["record"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventHarvestStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventHarvestStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventServerStop, nil)
}

func TestManager_Emit_NilManager(t *testing.T) {
	var m *Manager
	m.OnAny("ignored", func(context.Context, Payload) error { return nil })
	m.Emit(context.Background(), EventServerStop, nil)
	m.OffAny("ignored")
}

func TestManager_OnAny(t *testing.T) {
	m := testManager()

	var seen []string
	m.On(EventRecordError, "specific", func(_ context.Context, p Payload) error {
		seen = append(seen, "specific:"+p.Event)
		return nil
	})
	m.OnAny("all", func(_ context.Context, p Payload) error {
		seen = append(seen, "all:"+p.Event)
		return nil
	})

	m.Emit(context.Background(), EventRecordError, nil)
	m.Emit(context.Background(), EventHarvestFinish, nil)
	assert.Equal(t, []string{
		"specific:" + EventRecordError,
		"all:" + EventRecordError,
		"all:" + EventHarvestFinish,
	}, seen)

	m.OffAny("all")
	seen = nil
	m.Emit(context.Background(), EventHarvestFinish, nil)
	assert.Empty(t, seen)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventHarvestStart, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventHarvestStart, "removable")
	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.Equal(t, 1, callCount)
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventHarvestStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventHarvestStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventHarvestStart, "remove-me")
	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_HandlersSeeSnapshot(t *testing.T) {
	m := testManager()

	var calls int
	m.On(EventHarvestStart, "self-removing", func(_ context.Context, _ Payload) error {
		calls++
		m.Off(EventHarvestStart, "self-removing")
		return nil
	})

	m.Emit(context.Background(), EventHarvestStart, nil)
	m.Emit(context.Background(), EventHarvestStart, nil)
	assert.Equal(t, 1, calls)
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventHarvestStart)
	assert.Contains(t, AllEvents, EventRecordCommitted)
}
