package services

import (
	"strings"

	"github.com/BinateWizard/smartfirex-cpe/models"
)

// smokeAlertThreshold is the analog smoke reading above which a device is
// considered in alert. Strictly greater-than: 1500 itself is still normal.
const smokeAlertThreshold = 1500

// AlertClassifier decides whether a device state represents an alert
// condition. It is stateless and pure: the same state always yields the same
// answer, so the client-side watcher and the server-side recorder can run
// independent instances against the same feed and stay consistent.
type AlertClassifier struct{}

func NewAlertClassifier() *AlertClassifier {
	return &AlertClassifier{}
}

// IsAlert evaluates the fixed decision table, first match wins.
func (c *AlertClassifier) IsAlert(state *models.DeviceState) bool {
	if state == nil {
		return false
	}

	// An explicit status label is authoritative in both directions: a safe
	// label suppresses every other alert-indicating field. A "sprinkler"
	// label matches neither branch and falls through to the sensor checks,
	// since it denotes an automated response action, not a hazard.
	switch state.StatusLabel {
	case "alert", "unsafe":
		return true
	case "safe", "normal", "idle":
		return false
	}

	if state.SensorError {
		return true
	}

	if state.LastType == "alarm" {
		return true
	}

	switch strings.ToLower(state.GasStatus) {
	case "critical", "detected":
		return true
	}

	if state.Message == "help requested" || state.Message == "alarm has been triggered" {
		return true
	}

	if state.HasSmoke && state.SmokeLevel > smokeAlertThreshold {
		return true
	}

	return false
}

// AlertMessage picks a human-readable description for an alerting state,
// most specific cause first.
func (c *AlertClassifier) AlertMessage(state *models.DeviceState) string {
	if state == nil {
		return "Emergency alert detected!"
	}

	gas := strings.ToLower(state.GasStatus)

	switch {
	case state.StatusLabel == "alert":
		return "Emergency button pressed (3s hold)"
	case gas == "detected" || gas == "critical":
		return "Critical gas levels detected"
	case state.LastType == "alarm":
		return "Alarm triggered"
	case state.HasSmoke && state.SmokeLevel > smokeAlertThreshold:
		return "High smoke levels detected"
	}

	return "Emergency alert detected!"
}
