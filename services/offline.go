package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/models"

	"go.uber.org/zap"
)

// Typed failures of the offline-registration entry point. Both are raised
// before any write occurs.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidArgument = errors.New("invalid-argument")
)

// TokenVerifier validates a caller's ID token and returns their user id.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

// OfflineRegistrationService creates the single "offline" notification for a
// user who registered a device that has not sent live data yet.
type OfflineRegistrationService struct {
	verifier      TokenVerifier
	notifications NotificationStore
	logger        *zap.Logger
}

func NewOfflineRegistrationService(verifier TokenVerifier, notifications NotificationStore, logger *zap.Logger) *OfflineRegistrationService {
	return &OfflineRegistrationService{
		verifier:      verifier,
		notifications: notifications,
		logger:        logger,
	}
}

// offlineRegistrationRequest is the request body of the entry point.
type offlineRegistrationRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// Register validates the caller and creates exactly one offline
// NotificationRecord for them.
func (s *OfflineRegistrationService) Register(ctx context.Context, idToken string, req offlineRegistrationRequest) error {
	if idToken == "" {
		return ErrUnauthenticated
	}

	userID, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Warn("Rejected offline registration: invalid token", zap.Error(err))
		return ErrUnauthenticated
	}

	if req.DeviceID == "" {
		return fmt.Errorf("%w: deviceId required", ErrInvalidArgument)
	}

	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = req.DeviceID
	}

	record := models.NotificationRecord{
		UserID:     userID,
		DeviceID:   req.DeviceID,
		DeviceName: deviceName,
		Type:       models.NotificationOffline,
		Title:      "Device Registered (Offline)",
		Message:    "Device added without live data. Awaiting first signal.",
		CreatedAt:  time.Now(),
		Read:       false,
	}

	if err := s.notifications.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create offline notification: %w", err)
	}

	s.logger.Info("Offline registration recorded",
		zap.String("user_id", userID),
		zap.String("device_id", req.DeviceID))
	return nil
}

// Handler returns the HTTP handler for the entry point. Failures map to
// 401 unauthenticated, 400 invalid-argument, 500 otherwise.
func (s *OfflineRegistrationService) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req offlineRegistrationRequest
		if r.Body != nil {
			// An unreadable body is treated as empty; validation rejects it.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		err := s.Register(r.Context(), bearerToken(r), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case errors.Is(err, ErrUnauthenticated):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		case errors.Is(err, ErrInvalidArgument):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid-argument"})
		default:
			s.logger.Error("Offline registration failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		}
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
