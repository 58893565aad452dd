package models

import (
	"time"
)

// StatusHistoryEntry is one alert record in a device's history ring buffer.
// Stored under devices/{deviceId}/statusHistory; the recorder keeps only the
// HistoryLimit newest entries by timestamp.
type StatusHistoryEntry struct {
	ID          string   `json:"id"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
	DeviceID    string   `json:"deviceId"`
	Message     string   `json:"message"`
	GasStatus   string   `json:"gasStatus"`
	SmokeLevel  float64  `json:"smokeLevel"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Type        string   `json:"type"`
}

// HistoryLimit is the number of history entries retained per device.
const HistoryLimit = 5

// NotificationType distinguishes alert fan-out records from offline
// device-registration records.
type NotificationType string

const (
	NotificationAlert   NotificationType = "alert"
	NotificationOffline NotificationType = "offline"
)

// NotificationRecord is one per-user notification document. Created on alert
// fan-out or offline registration; only ever mutated later by a read-flag flip.
type NotificationRecord struct {
	UserID      string           `firestore:"userId"`
	DeviceID    string           `firestore:"deviceId"`
	DeviceName  string           `firestore:"deviceName"`
	Type        NotificationType `firestore:"type"`
	Title       string           `firestore:"title"`
	Message     string           `firestore:"message"`
	CreatedAt   time.Time        `firestore:"createdAt"`
	Read        bool             `firestore:"read"`
	GasStatus   string           `firestore:"gasStatus,omitempty"`
	SmokeLevel  float64          `firestore:"smokeLevel,omitempty"`
	Temperature *float64         `firestore:"temperature,omitempty"`
	Humidity    *float64         `firestore:"humidity,omitempty"`
}

// DeviceRegistration links a user to a device they registered.
type DeviceRegistration struct {
	UserID     string
	DeviceName string
}
