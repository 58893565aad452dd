package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceState_StatusShapes(t *testing.T) {
	// status as plain string
	state := ParseDeviceState(DeviceStateRecord{"status": "ALERT"})
	require.NotNil(t, state)
	assert.Equal(t, "alert", state.StatusLabel)

	// status as object with state field
	state = ParseDeviceState(DeviceStateRecord{
		"status": map[string]interface{}{"state": "Sprinkler"},
	})
	require.NotNil(t, state)
	assert.Equal(t, "sprinkler", state.StatusLabel)

	// status of an unexpected type yields no label
	state = ParseDeviceState(DeviceStateRecord{"status": 42})
	require.NotNil(t, state)
	assert.Equal(t, "", state.StatusLabel)
}

func TestParseDeviceState_SmokeFieldPrecedence(t *testing.T) {
	// smokeLevel wins even when zero and other fields are present
	state := ParseDeviceState(DeviceStateRecord{
		"smokeLevel":  float64(0),
		"smoke":       float64(2000),
		"smokeAnalog": float64(3000),
	})
	require.NotNil(t, state)
	assert.True(t, state.HasSmoke)
	assert.Equal(t, float64(0), state.SmokeLevel)

	// smoke is used when smokeLevel is absent
	state = ParseDeviceState(DeviceStateRecord{
		"smoke":       float64(1700),
		"smokeAnalog": float64(100),
	})
	require.NotNil(t, state)
	assert.Equal(t, float64(1700), state.SmokeLevel)

	// no smoke field at all
	state = ParseDeviceState(DeviceStateRecord{"gasStatus": "normal"})
	require.NotNil(t, state)
	assert.False(t, state.HasSmoke)
}

func TestParseDeviceState_NilRecord(t *testing.T) {
	assert.Nil(t, ParseDeviceState(nil))
}

func TestParseDeviceState_OptionalReadings(t *testing.T) {
	state := ParseDeviceState(DeviceStateRecord{
		"temperature": float64(31.5),
		"humidity":    float64(55),
		"sensorError": true,
		"lastType":    "alarm",
		"message":     "help requested",
	})
	require.NotNil(t, state)
	require.NotNil(t, state.Temperature)
	assert.Equal(t, 31.5, *state.Temperature)
	require.NotNil(t, state.Humidity)
	assert.Equal(t, 55.0, *state.Humidity)
	assert.True(t, state.SensorError)
	assert.Equal(t, "alarm", state.LastType)
	assert.Equal(t, "help requested", state.Message)
}
