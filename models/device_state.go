package models

import (
	"strings"
	"time"
)

// DeviceStateRecord is the raw, loosely-shaped snapshot published by a device.
// Fields are optional and their types vary between firmware revisions, so the
// record is kept as a generic map until it crosses the ingestion boundary.
type DeviceStateRecord map[string]interface{}

// DeviceState is the canonical form of a DeviceStateRecord. Parsing happens
// exactly once, at the ingestion boundary, so the classifier never has to
// type-sniff the raw map.
type DeviceState struct {
	// StatusLabel is the lowercase status string, taken from the record's
	// "status" field directly or from status.state when status is an object.
	// Empty when the record carries no recognizable status.
	StatusLabel string

	SensorError bool
	LastType    string
	GasStatus   string
	Message     string

	// SmokeLevel is the first present of smokeLevel, smoke, smokeAnalog.
	// HasSmoke distinguishes an explicit zero reading from an absent one.
	SmokeLevel float64
	HasSmoke   bool

	Temperature *float64
	Humidity    *float64
}

// ParseDeviceState normalizes a raw record. A nil or empty record yields nil,
// which downstream code treats as "not alert, no prior state assumptions".
func ParseDeviceState(raw DeviceStateRecord) *DeviceState {
	if raw == nil {
		return nil
	}

	state := &DeviceState{}

	switch status := raw["status"].(type) {
	case string:
		state.StatusLabel = strings.ToLower(status)
	case map[string]interface{}:
		if label, ok := status["state"].(string); ok {
			state.StatusLabel = strings.ToLower(label)
		}
	}

	if v, ok := raw["sensorError"].(bool); ok {
		state.SensorError = v
	}
	if v, ok := raw["lastType"].(string); ok {
		state.LastType = v
	}
	if v, ok := raw["gasStatus"].(string); ok {
		state.GasStatus = v
	}
	if v, ok := raw["message"].(string); ok {
		state.Message = v
	}

	// First present smoke field wins, even when its value is zero.
	for _, key := range []string{"smokeLevel", "smoke", "smokeAnalog"} {
		if v, ok := asFloat(raw[key]); ok {
			state.SmokeLevel = v
			state.HasSmoke = true
			break
		}
	}

	if v, ok := asFloat(raw["temperature"]); ok {
		state.Temperature = &v
	}
	if v, ok := asFloat(raw["humidity"]); ok {
		state.Humidity = &v
	}

	return state
}

// asFloat accepts the numeric shapes JSON decoding can produce.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// DeviceStateUpdate is one feed delivery: a device identifier plus its full
// current state (full-replace semantics, not a delta).
type DeviceStateUpdate struct {
	DeviceID   string
	State      *DeviceState
	ReceivedAt time.Time
}

// TransitionDirection marks which edge of the alert latch was crossed.
type TransitionDirection string

const (
	TransitionEntered TransitionDirection = "entered-alert"
	TransitionCleared TransitionDirection = "cleared-alert"
)

// AlertTransition is the ephemeral event emitted by a watcher when a device's
// classified alert state changes. It is derived from two consecutive
// observations and never persisted as its own entity.
type AlertTransition struct {
	ID         string
	DeviceID   string
	DeviceName string
	Direction  TransitionDirection
	OccurredAt time.Time
	Message    string
	State      *DeviceState
}
