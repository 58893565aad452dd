package services

import (
	"context"
	"sync"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransitionHandler consumes alert transitions emitted by a watcher.
type TransitionHandler func(models.AlertTransition)

// DeviceWatcher holds the alert latch for a single device. The latch is owned
// exclusively by this watcher; cross-instance consistency relies only on the
// classifier being pure. Observe calls for the same device are serialized, so
// classification and latch update never overlap in flight.
type DeviceWatcher struct {
	deviceID   string
	deviceName string
	classifier *AlertClassifier
	handler    TransitionHandler
	logger     *zap.Logger

	mu        sync.Mutex
	prevAlert bool
	stopped   bool
}

func NewDeviceWatcher(deviceID, deviceName string, classifier *AlertClassifier, handler TransitionHandler, logger *zap.Logger) *DeviceWatcher {
	return &DeviceWatcher{
		deviceID:   deviceID,
		deviceName: deviceName,
		classifier: classifier,
		handler:    handler,
		logger:     logger,
	}
}

// Observe classifies one state snapshot and emits at most one transition:
// entered-alert on a false->true edge, cleared-alert on true->false. Repeated
// alert-shaped updates do not re-fire. The latch is updated unconditionally.
func (w *DeviceWatcher) Observe(state *models.DeviceState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	isAlert := w.classifier.IsAlert(state)

	switch {
	case isAlert && !w.prevAlert:
		w.emit(models.TransitionEntered, w.classifier.AlertMessage(state), state)
	case !isAlert && w.prevAlert:
		w.emit(models.TransitionCleared, "Alert cleared - situation safe", state)
	}

	w.prevAlert = isAlert
}

func (w *DeviceWatcher) emit(direction models.TransitionDirection, message string, state *models.DeviceState) {
	transition := models.AlertTransition{
		ID:         uuid.NewString(),
		DeviceID:   w.deviceID,
		DeviceName: w.deviceName,
		Direction:  direction,
		OccurredAt: time.Now(),
		Message:    message,
		State:      state,
	}

	w.logger.Info("Alert transition",
		zap.String("device_id", w.deviceID),
		zap.String("device_name", w.deviceName),
		zap.String("direction", string(direction)),
		zap.String("message", message),
	)

	w.handler(transition)
}

// Stop tears the watcher down. Taking the same mutex as Observe guarantees no
// emission after Stop returns.
func (w *DeviceWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

// WatcherManager routes feed updates to per-device watchers, creating one per
// device on first sight. Device names are resolved once through the registry.
type WatcherManager struct {
	classifier *AlertClassifier
	handler    TransitionHandler
	registry   DeviceRegistry
	logger     *zap.Logger

	mu       sync.Mutex
	watchers map[string]*DeviceWatcher
}

func NewWatcherManager(classifier *AlertClassifier, registry DeviceRegistry, handler TransitionHandler, logger *zap.Logger) *WatcherManager {
	return &WatcherManager{
		classifier: classifier,
		handler:    handler,
		registry:   registry,
		logger:     logger,
		watchers:   make(map[string]*DeviceWatcher),
	}
}

// HandleUpdate dispatches one feed delivery to its device's watcher.
func (m *WatcherManager) HandleUpdate(ctx context.Context, update *models.DeviceStateUpdate) {
	if update == nil || update.DeviceID == "" {
		return
	}
	m.watcherFor(ctx, update.DeviceID).Observe(update.State)
}

func (m *WatcherManager) watcherFor(ctx context.Context, deviceID string) *DeviceWatcher {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.watchers[deviceID]; ok {
		return w
	}

	name := m.resolveName(ctx, deviceID)
	w := NewDeviceWatcher(deviceID, name, m.classifier, m.handler, m.logger)
	m.watchers[deviceID] = w

	m.logger.Info("Monitoring device",
		zap.String("device_id", deviceID),
		zap.String("device_name", name),
	)

	return w
}

func (m *WatcherManager) resolveName(ctx context.Context, deviceID string) string {
	if m.registry == nil {
		return deviceID
	}

	regs, err := m.registry.Registrations(ctx, deviceID)
	if err != nil {
		m.logger.Warn("Failed to resolve device name",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return deviceID
	}

	for _, reg := range regs {
		if reg.DeviceName != "" {
			return reg.DeviceName
		}
	}
	return deviceID
}

// StopAll tears down every watcher; no emissions happen afterwards.
func (m *WatcherManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.watchers {
		w.Stop()
	}
	m.logger.Info("Stopped device watchers", zap.Int("count", len(m.watchers)))
}
