package services

import (
	"context"
	"testing"

	"github.com/BinateWizard/smartfirex-cpe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func alertState() *models.DeviceState {
	return models.ParseDeviceState(models.DeviceStateRecord{"status": "alert"})
}

func idleState() *models.DeviceState {
	return models.ParseDeviceState(models.DeviceStateRecord{"status": "idle"})
}

func newTestWatcher(t *testing.T) (*DeviceWatcher, *[]models.AlertTransition) {
	t.Helper()
	var emitted []models.AlertTransition
	w := NewDeviceWatcher("dev-1", "Kitchen", NewAlertClassifier(), func(tr models.AlertTransition) {
		emitted = append(emitted, tr)
	}, zap.NewNop())
	return w, &emitted
}

func TestDeviceWatcher_SingleEnteredForSustainedAlert(t *testing.T) {
	w, emitted := newTestWatcher(t)

	w.Observe(idleState())
	w.Observe(alertState())
	w.Observe(alertState())
	w.Observe(alertState())

	require.Len(t, *emitted, 1)
	assert.Equal(t, models.TransitionEntered, (*emitted)[0].Direction)
	assert.Equal(t, "dev-1", (*emitted)[0].DeviceID)
	assert.Equal(t, "Kitchen", (*emitted)[0].DeviceName)
}

func TestDeviceWatcher_SingleClearedForSustainedClear(t *testing.T) {
	w, emitted := newTestWatcher(t)

	w.Observe(alertState())
	w.Observe(idleState())
	w.Observe(idleState())

	require.Len(t, *emitted, 2)
	assert.Equal(t, models.TransitionEntered, (*emitted)[0].Direction)
	assert.Equal(t, models.TransitionCleared, (*emitted)[1].Direction)
}

func TestDeviceWatcher_EdgeCounting(t *testing.T) {
	w, emitted := newTestWatcher(t)

	// alternating alert / not-alert: one emission per edge
	w.Observe(alertState())
	w.Observe(idleState())
	w.Observe(alertState())
	w.Observe(idleState())

	require.Len(t, *emitted, 4)
	assert.Equal(t, models.TransitionEntered, (*emitted)[0].Direction)
	assert.Equal(t, models.TransitionCleared, (*emitted)[1].Direction)
	assert.Equal(t, models.TransitionEntered, (*emitted)[2].Direction)
	assert.Equal(t, models.TransitionCleared, (*emitted)[3].Direction)
}

func TestDeviceWatcher_NilStateIsNotAlert(t *testing.T) {
	w, emitted := newTestWatcher(t)

	w.Observe(nil)
	require.Empty(t, *emitted)

	w.Observe(alertState())
	w.Observe(nil)

	require.Len(t, *emitted, 2)
	assert.Equal(t, models.TransitionCleared, (*emitted)[1].Direction)
}

func TestDeviceWatcher_NoEmissionAfterStop(t *testing.T) {
	w, emitted := newTestWatcher(t)

	w.Observe(idleState())
	w.Stop()
	w.Observe(alertState())
	w.Observe(idleState())

	assert.Empty(t, *emitted)
}

func TestWatcherManager_RoutesPerDevice(t *testing.T) {
	var emitted []models.AlertTransition
	m := NewWatcherManager(NewAlertClassifier(), nil, func(tr models.AlertTransition) {
		emitted = append(emitted, tr)
	}, zap.NewNop())

	ctx := context.Background()
	m.HandleUpdate(ctx, &models.DeviceStateUpdate{DeviceID: "a", State: alertState()})
	m.HandleUpdate(ctx, &models.DeviceStateUpdate{DeviceID: "b", State: alertState()})
	m.HandleUpdate(ctx, &models.DeviceStateUpdate{DeviceID: "a", State: alertState()})

	// each device has its own latch: two entered events total
	require.Len(t, emitted, 2)
	assert.Equal(t, "a", emitted[0].DeviceID)
	assert.Equal(t, "b", emitted[1].DeviceID)

	// no registry: device id doubles as the name
	assert.Equal(t, "a", emitted[0].DeviceName)
}

func TestWatcherManager_StopAllSilencesEverything(t *testing.T) {
	var emitted []models.AlertTransition
	m := NewWatcherManager(NewAlertClassifier(), nil, func(tr models.AlertTransition) {
		emitted = append(emitted, tr)
	}, zap.NewNop())

	ctx := context.Background()
	m.HandleUpdate(ctx, &models.DeviceStateUpdate{DeviceID: "a", State: idleState()})
	m.StopAll()
	m.HandleUpdate(ctx, &models.DeviceStateUpdate{DeviceID: "a", State: alertState()})

	assert.Empty(t, emitted)
}

func TestWatcherManager_IgnoresEmptyUpdates(t *testing.T) {
	m := NewWatcherManager(NewAlertClassifier(), nil, func(models.AlertTransition) {
		t.Fatal("unexpected emission")
	}, zap.NewNop())

	m.HandleUpdate(context.Background(), nil)
	m.HandleUpdate(context.Background(), &models.DeviceStateUpdate{DeviceID: ""})
}
