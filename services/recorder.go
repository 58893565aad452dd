package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryStore is the durable per-device status-history ring buffer.
type HistoryStore interface {
	AppendHistory(ctx context.Context, deviceID string, entry models.StatusHistoryEntry) error
	TrimHistory(ctx context.Context, deviceID string, keep int) error
}

// DeviceRegistry resolves which users are registered against a device.
type DeviceRegistry interface {
	Registrations(ctx context.Context, deviceID string) ([]models.DeviceRegistration, error)
}

// NotificationStore persists per-user notification documents. CreateBatch is
// atomic: either every record lands or none do.
type NotificationStore interface {
	Create(ctx context.Context, record models.NotificationRecord) error
	CreateBatch(ctx context.Context, records []models.NotificationRecord) error
}

// Recorder is the server-trusted transition detector. It keeps its own
// previous-record latch per device, independent of any client watcher, and on
// each transition into alert writes one history entry (then trims the ring
// buffer) and fans a notification out to every registered user.
//
// Feed delivery is at-least-once and possibly concurrent for the same device,
// so everything here tolerates running twice for one transition: the trim
// always converges to the newest entries, and duplicate fan-out rows on a
// retried delivery are an accepted bounded cost.
type Recorder struct {
	classifier    *AlertClassifier
	history       HistoryStore
	registry      DeviceRegistry
	notifications NotificationStore
	logger        *zap.Logger

	mu   sync.Mutex
	prev map[string]*models.DeviceState
}

func NewRecorder(classifier *AlertClassifier, history HistoryStore, registry DeviceRegistry, notifications NotificationStore, logger *zap.Logger) *Recorder {
	return &Recorder{
		classifier:    classifier,
		history:       history,
		registry:      registry,
		notifications: notifications,
		logger:        logger,
		prev:          make(map[string]*models.DeviceState),
	}
}

// HandleUpdate processes one durable-feed delivery. A returned error means
// the fan-out batch did not commit and the delivery should be redelivered by
// the feed layer; history-trim failures are logged only, since the next
// transition's trim catches up.
func (r *Recorder) HandleUpdate(ctx context.Context, update *models.DeviceStateUpdate) error {
	if update == nil || update.DeviceID == "" {
		return nil
	}

	// Absent record: no alert, and no prior-state assumptions for later.
	if update.State == nil {
		return nil
	}

	r.mu.Lock()
	wasAlert := r.classifier.IsAlert(r.prev[update.DeviceID])
	isAlert := r.classifier.IsAlert(update.State)
	r.prev[update.DeviceID] = update.State
	r.mu.Unlock()

	// History and notifications are alert-only; nothing happens on clear.
	if !isAlert || wasAlert {
		return nil
	}

	now := time.Now()

	r.recordHistory(ctx, update.DeviceID, update.State, now)

	if err := r.fanOut(ctx, update.DeviceID, update.State, now); err != nil {
		return fmt.Errorf("notification fan-out for device %s: %w", update.DeviceID, err)
	}

	return nil
}

// recordHistory appends one entry and trims the ring buffer to the newest
// HistoryLimit entries. A trim failure after a successful append is logged but
// not retried inline.
func (r *Recorder) recordHistory(ctx context.Context, deviceID string, state *models.DeviceState, now time.Time) {
	entry := models.StatusHistoryEntry{
		ID:          uuid.NewString(),
		Timestamp:   now.UnixMilli(),
		DeviceID:    deviceID,
		Message:     historyMessage(state),
		GasStatus:   gasStatusOrNormal(state),
		SmokeLevel:  state.SmokeLevel,
		Temperature: state.Temperature,
		Humidity:    state.Humidity,
		Type:        "alert",
	}

	if err := r.history.AppendHistory(ctx, deviceID, entry); err != nil {
		r.logger.Error("Failed to append status history",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	if err := r.history.TrimHistory(ctx, deviceID, models.HistoryLimit); err != nil {
		r.logger.Error("Failed to trim status history",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

// fanOut creates one NotificationRecord per registered user, committed as a
// single atomic batch so a transient failure never leaves a partial fan-out.
func (r *Recorder) fanOut(ctx context.Context, deviceID string, state *models.DeviceState, now time.Time) error {
	regs, err := r.registry.Registrations(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("registry lookup: %w", err)
	}
	if len(regs) == 0 {
		r.logger.Debug("No registrations for device, skipping fan-out",
			zap.String("device_id", deviceID))
		return nil
	}

	records := make([]models.NotificationRecord, 0, len(regs))
	for _, reg := range regs {
		deviceName := reg.DeviceName
		if deviceName == "" {
			deviceName = deviceID
		}
		records = append(records, models.NotificationRecord{
			UserID:      reg.UserID,
			DeviceID:    deviceID,
			DeviceName:  deviceName,
			Type:        models.NotificationAlert,
			Title:       "Alert Triggered",
			Message:     historyMessage(state),
			CreatedAt:   now,
			Read:        false,
			GasStatus:   gasStatusOrNormal(state),
			SmokeLevel:  state.SmokeLevel,
			Temperature: state.Temperature,
			Humidity:    state.Humidity,
		})
	}

	if err := r.notifications.CreateBatch(ctx, records); err != nil {
		return err
	}

	r.logger.Info("Alert notifications fanned out",
		zap.String("device_id", deviceID),
		zap.Int("recipients", len(records)),
	)
	return nil
}

func historyMessage(state *models.DeviceState) string {
	if state != nil && state.Message != "" {
		return state.Message
	}
	return "Alert triggered"
}

func gasStatusOrNormal(state *models.DeviceState) string {
	if state != nil && state.GasStatus != "" {
		return state.GasStatus
	}
	return "normal"
}
