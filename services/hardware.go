package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HardwareSirenService drives the siren and vibration motor on the CPE over
// its local HTTP control API. It implements SirenController.
//
// Start requests are replace-not-stack: the firmware restarts the signal when
// it is already running, and the service tracks active state so Stop is a
// cheap no-op when nothing is sounding.
type HardwareSirenService struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client

	mu          sync.Mutex
	sirenActive map[string]bool
	vibrationOn map[string]bool
}

// hardwareCommand is the payload sent to the CPE control API.
type hardwareCommand struct {
	DeviceID string `json:"device_id"`
	Signal   string `json:"signal"` // "siren" | "vibration"
	Action   string `json:"action"` // "start" | "stop"
	// Vibration pattern in milliseconds: on, off, on, pause. Repeated by the
	// firmware until stopped.
	Pattern []int `json:"pattern,omitempty"`
}

// alertVibrationPattern mirrors the pattern the product has always used.
var alertVibrationPattern = []int{800, 400, 800, 1500}

func NewHardwareSirenService(logger *zap.Logger, apiURL string) *HardwareSirenService {
	return &HardwareSirenService{
		logger: logger,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		sirenActive: make(map[string]bool),
		vibrationOn: make(map[string]bool),
	}
}

// StartSiren starts (or restarts) the audible alarm for a device.
func (h *HardwareSirenService) StartSiren(deviceID string) error {
	if err := h.send(hardwareCommand{DeviceID: deviceID, Signal: "siren", Action: "start"}); err != nil {
		return err
	}

	h.mu.Lock()
	h.sirenActive[deviceID] = true
	h.mu.Unlock()

	h.logger.Info("Siren started", zap.String("device_id", deviceID))
	return nil
}

// StopSiren silences the alarm; no-op when it is not sounding.
func (h *HardwareSirenService) StopSiren(deviceID string) error {
	h.mu.Lock()
	active := h.sirenActive[deviceID]
	h.mu.Unlock()
	if !active {
		return nil
	}

	if err := h.send(hardwareCommand{DeviceID: deviceID, Signal: "siren", Action: "stop"}); err != nil {
		return err
	}

	h.mu.Lock()
	h.sirenActive[deviceID] = false
	h.mu.Unlock()

	h.logger.Info("Siren stopped", zap.String("device_id", deviceID))
	return nil
}

// StartVibration starts (or restarts) the repeating vibration pattern.
func (h *HardwareSirenService) StartVibration(deviceID string) error {
	cmd := hardwareCommand{
		DeviceID: deviceID,
		Signal:   "vibration",
		Action:   "start",
		Pattern:  alertVibrationPattern,
	}
	if err := h.send(cmd); err != nil {
		return err
	}

	h.mu.Lock()
	h.vibrationOn[deviceID] = true
	h.mu.Unlock()

	h.logger.Info("Vibration started", zap.String("device_id", deviceID))
	return nil
}

// StopVibration stops the pattern; no-op when it is not running.
func (h *HardwareSirenService) StopVibration(deviceID string) error {
	h.mu.Lock()
	active := h.vibrationOn[deviceID]
	h.mu.Unlock()
	if !active {
		return nil
	}

	if err := h.send(hardwareCommand{DeviceID: deviceID, Signal: "vibration", Action: "stop"}); err != nil {
		return err
	}

	h.mu.Lock()
	h.vibrationOn[deviceID] = false
	h.mu.Unlock()

	h.logger.Info("Vibration stopped", zap.String("device_id", deviceID))
	return nil
}

// send posts one command to the CPE control API.
func (h *HardwareSirenService) send(cmd hardwareCommand) error {
	jsonData, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/alert-signal", h.apiURL)

	req, err := http.NewRequest("POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SmartFireX-CPE/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("Failed to send hardware command",
			zap.String("device_id", cmd.DeviceID),
			zap.String("signal", cmd.Signal),
			zap.String("action", cmd.Action),
			zap.String("url", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	h.logger.Error("Hardware control API returned error",
		zap.String("device_id", cmd.DeviceID),
		zap.String("signal", cmd.Signal),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("hardware control API error: %s", resp.Status)
}
