package services

import (
	"github.com/BinateWizard/smartfirex-cpe/models"

	"go.uber.org/zap"
)

// SirenController drives the audible and haptic alarm hardware on the CPE.
// Start while already running restarts the signal rather than stacking a
// second one; Stop is a no-op when nothing is running.
type SirenController interface {
	StartSiren(deviceID string) error
	StopSiren(deviceID string) error
	StartVibration(deviceID string) error
	StopVibration(deviceID string) error
}

// Notifier raises user-visible notifications. Raising a second alert notice
// for the same device replaces the previous one instead of piling up.
type Notifier interface {
	NotifyAlert(transition models.AlertTransition) error
	NotifyCleared(transition models.AlertTransition) error
}

// AlertDispatcher turns alert transitions into local side effects. Each
// effect is executed in isolation: a failing siren, vibration, or
// notification is logged and never blocks the sibling effects, and nothing
// here ever panics out to the feed loop.
type AlertDispatcher struct {
	siren    SirenController
	notifier Notifier
	logger   *zap.Logger
}

func NewAlertDispatcher(siren SirenController, notifier Notifier, logger *zap.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		siren:    siren,
		notifier: notifier,
		logger:   logger,
	}
}

// Dispatch runs the side-effect set for one transition.
func (d *AlertDispatcher) Dispatch(transition models.AlertTransition) {
	switch transition.Direction {
	case models.TransitionEntered:
		d.run(transition, "start siren", func() error {
			return d.siren.StartSiren(transition.DeviceID)
		})
		d.run(transition, "start vibration", func() error {
			return d.siren.StartVibration(transition.DeviceID)
		})
		d.run(transition, "alert notification", func() error {
			return d.notifier.NotifyAlert(transition)
		})

	case models.TransitionCleared:
		d.run(transition, "stop siren", func() error {
			return d.siren.StopSiren(transition.DeviceID)
		})
		d.run(transition, "stop vibration", func() error {
			return d.siren.StopVibration(transition.DeviceID)
		})
		d.run(transition, "cleared notification", func() error {
			return d.notifier.NotifyCleared(transition)
		})
	}
}

// run executes one effect, containing both errors and panics so a broken
// capability degrades that effect only.
func (d *AlertDispatcher) run(transition models.AlertTransition, effect string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Side effect panicked",
				zap.String("device_id", transition.DeviceID),
				zap.String("effect", effect),
				zap.Any("panic", r),
			)
		}
	}()

	if err := fn(); err != nil {
		d.logger.Error("Side effect failed",
			zap.String("device_id", transition.DeviceID),
			zap.String("effect", effect),
			zap.Error(err),
		)
	}
}
