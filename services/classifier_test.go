package services

import (
	"testing"

	"github.com/BinateWizard/smartfirex-cpe/models"

	"github.com/stretchr/testify/assert"
)

func classify(t *testing.T, record models.DeviceStateRecord) bool {
	t.Helper()
	return NewAlertClassifier().IsAlert(models.ParseDeviceState(record))
}

func TestIsAlert_StatusLabels(t *testing.T) {
	assert.True(t, classify(t, models.DeviceStateRecord{"status": "alert"}))
	assert.True(t, classify(t, models.DeviceStateRecord{"status": "unsafe"}))
	assert.True(t, classify(t, models.DeviceStateRecord{
		"status": map[string]interface{}{"state": "alert"},
	}))

	assert.False(t, classify(t, models.DeviceStateRecord{"status": "safe"}))
	assert.False(t, classify(t, models.DeviceStateRecord{"status": "normal"}))
	assert.False(t, classify(t, models.DeviceStateRecord{"status": "idle"}))
}

func TestIsAlert_SafeStatusOverridesOtherFields(t *testing.T) {
	// an explicit safe status suppresses every other alert indicator
	assert.False(t, classify(t, models.DeviceStateRecord{
		"status":     "safe",
		"gasStatus":  "critical",
		"smokeLevel": float64(9000),
		"lastType":   "alarm",
	}))

	assert.True(t, classify(t, models.DeviceStateRecord{
		"status":    "alert",
		"gasStatus": "critical",
	}))
}

func TestIsAlert_SprinklerFallsThrough(t *testing.T) {
	// sprinkler is a response action, not a hazard
	assert.False(t, classify(t, models.DeviceStateRecord{
		"status":     map[string]interface{}{"state": "sprinkler"},
		"smokeLevel": float64(200),
	}))

	// but sensor readings behind a sprinkler status still count
	assert.True(t, classify(t, models.DeviceStateRecord{
		"status":    map[string]interface{}{"state": "sprinkler"},
		"gasStatus": "critical",
	}))
}

func TestIsAlert_SensorFields(t *testing.T) {
	assert.True(t, classify(t, models.DeviceStateRecord{"sensorError": true}))
	assert.False(t, classify(t, models.DeviceStateRecord{"sensorError": false}))

	assert.True(t, classify(t, models.DeviceStateRecord{"lastType": "alarm"}))
	assert.False(t, classify(t, models.DeviceStateRecord{"lastType": "test"}))

	assert.True(t, classify(t, models.DeviceStateRecord{"gasStatus": "critical"}))
	assert.True(t, classify(t, models.DeviceStateRecord{"gasStatus": "Detected"}))
	assert.False(t, classify(t, models.DeviceStateRecord{"gasStatus": "normal"}))

	assert.True(t, classify(t, models.DeviceStateRecord{"message": "help requested"}))
	assert.True(t, classify(t, models.DeviceStateRecord{"message": "alarm has been triggered"}))
	assert.False(t, classify(t, models.DeviceStateRecord{"message": "all good"}))
}

func TestIsAlert_SmokeBoundary(t *testing.T) {
	assert.False(t, classify(t, models.DeviceStateRecord{"smokeLevel": float64(1500)}))
	assert.True(t, classify(t, models.DeviceStateRecord{"smokeLevel": float64(1501)}))
	assert.True(t, classify(t, models.DeviceStateRecord{"smoke": float64(1501)}))
	assert.True(t, classify(t, models.DeviceStateRecord{"smokeAnalog": float64(1501)}))
}

func TestIsAlert_AbsentRecord(t *testing.T) {
	assert.False(t, NewAlertClassifier().IsAlert(nil))
	assert.False(t, classify(t, models.DeviceStateRecord{}))
}

func TestIsAlert_Deterministic(t *testing.T) {
	record := models.DeviceStateRecord{
		"status":     map[string]interface{}{"state": "sprinkler"},
		"gasStatus":  "detected",
		"smokeLevel": float64(1200),
	}

	// same input, repeated calls, independently-constructed instances
	first := NewAlertClassifier()
	second := NewAlertClassifier()
	for i := 0; i < 100; i++ {
		state := models.ParseDeviceState(record)
		assert.True(t, first.IsAlert(state))
		assert.Equal(t, first.IsAlert(state), second.IsAlert(state))
	}
}

func TestAlertMessage_Priority(t *testing.T) {
	c := NewAlertClassifier()

	assert.Equal(t, "Emergency button pressed (3s hold)", c.AlertMessage(models.ParseDeviceState(
		models.DeviceStateRecord{
			"status":    map[string]interface{}{"state": "alert"},
			"gasStatus": "critical",
		})))

	assert.Equal(t, "Critical gas levels detected", c.AlertMessage(models.ParseDeviceState(
		models.DeviceStateRecord{"gasStatus": "detected", "lastType": "alarm"})))

	assert.Equal(t, "Alarm triggered", c.AlertMessage(models.ParseDeviceState(
		models.DeviceStateRecord{"lastType": "alarm"})))

	assert.Equal(t, "High smoke levels detected", c.AlertMessage(models.ParseDeviceState(
		models.DeviceStateRecord{"smokeLevel": float64(2000)})))

	assert.Equal(t, "Emergency alert detected!", c.AlertMessage(models.ParseDeviceState(
		models.DeviceStateRecord{"sensorError": true})))

	assert.Equal(t, "Emergency alert detected!", c.AlertMessage(nil))
}
