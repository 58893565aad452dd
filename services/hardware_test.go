package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHardwareTestServer(t *testing.T) (*httptest.Server, *[]hardwareCommand) {
	t.Helper()
	var received []hardwareCommand
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd hardwareCommand
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		received = append(received, cmd)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func TestHardwareSiren_StartStopRoundTrip(t *testing.T) {
	server, received := newHardwareTestServer(t)
	h := NewHardwareSirenService(zap.NewNop(), server.URL)

	require.NoError(t, h.StartSiren("dev-1"))
	require.NoError(t, h.StopSiren("dev-1"))

	require.Len(t, *received, 2)
	assert.Equal(t, "siren", (*received)[0].Signal)
	assert.Equal(t, "start", (*received)[0].Action)
	assert.Equal(t, "stop", (*received)[1].Action)
	assert.Equal(t, "dev-1", (*received)[0].DeviceID)
}

func TestHardwareSiren_StopIsNoOpWhenIdle(t *testing.T) {
	server, received := newHardwareTestServer(t)
	h := NewHardwareSirenService(zap.NewNop(), server.URL)

	require.NoError(t, h.StopSiren("dev-1"))
	require.NoError(t, h.StopVibration("dev-1"))

	assert.Empty(t, *received)
}

func TestHardwareSiren_RestartReplacesRatherThanStacks(t *testing.T) {
	server, received := newHardwareTestServer(t)
	h := NewHardwareSirenService(zap.NewNop(), server.URL)

	require.NoError(t, h.StartSiren("dev-1"))
	require.NoError(t, h.StartSiren("dev-1"))
	require.NoError(t, h.StopSiren("dev-1"))

	// two starts, one stop: the firmware restarts on a repeated start and a
	// single stop still silences everything
	require.Len(t, *received, 3)
	assert.Equal(t, "start", (*received)[0].Action)
	assert.Equal(t, "start", (*received)[1].Action)
	assert.Equal(t, "stop", (*received)[2].Action)
}

func TestHardwareSiren_VibrationCarriesPattern(t *testing.T) {
	server, received := newHardwareTestServer(t)
	h := NewHardwareSirenService(zap.NewNop(), server.URL)

	require.NoError(t, h.StartVibration("dev-1"))

	require.Len(t, *received, 1)
	assert.Equal(t, "vibration", (*received)[0].Signal)
	assert.Equal(t, []int{800, 400, 800, 1500}, (*received)[0].Pattern)
}

func TestHardwareSiren_ErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	h := NewHardwareSirenService(zap.NewNop(), server.URL)

	err := h.StartSiren("dev-1")
	require.Error(t, err)

	// failed start leaves the siren inactive, so stop stays a no-op
	require.NoError(t, h.StopSiren("dev-1"))
}
