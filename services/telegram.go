package services

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/config"
	"github.com/BinateWizard/smartfirex-cpe/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramService raises system notifications for alert transitions. It
// implements Notifier. One visible alert message is kept per device: raising
// a second alert for the same device deletes the previous message before
// sending the new one, so notices replace rather than pile up.
type TelegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	config *config.Config
	logger *zap.Logger

	mu              sync.Mutex
	lastAlertMsgIDs map[string]int // deviceID -> last alert message ID
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %v", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %v", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:             bot,
		chatID:          chatID,
		config:          cfg,
		logger:          logger,
		lastAlertMsgIDs: make(map[string]int),
	}

	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %v", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// NotifyAlert raises the alert notification for a transition into alert,
// replacing any previous visible alert message for the same device.
func (ts *TelegramService) NotifyAlert(transition models.AlertTransition) error {
	ts.replacePrevious(transition.DeviceID)

	msg := tgbotapi.NewMessage(ts.chatID, ts.formatAlertMessage(transition))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	sent, err := ts.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("error sending telegram message: %v", err)
	}

	ts.mu.Lock()
	ts.lastAlertMsgIDs[transition.DeviceID] = sent.MessageID
	ts.mu.Unlock()

	ts.logger.Info("Sent alert notification",
		zap.String("device_id", transition.DeviceID),
		zap.Int("message_id", sent.MessageID))
	return nil
}

// NotifyCleared raises the all-clear notice. It is sent silent (no client
// vibration) and leaves no message to replace later.
func (ts *TelegramService) NotifyCleared(transition models.AlertTransition) error {
	ts.replacePrevious(transition.DeviceID)

	msg := tgbotapi.NewMessage(ts.chatID, ts.formatClearedMessage(transition))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	msg.DisableNotification = true

	if _, err := ts.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %v", err)
	}

	ts.logger.Info("Sent cleared notification",
		zap.String("device_id", transition.DeviceID))
	return nil
}

// replacePrevious deletes the device's previous alert message, if any.
// Deletion failures are logged only: an undeletable stale message must not
// block the new notice.
func (ts *TelegramService) replacePrevious(deviceID string) {
	ts.mu.Lock()
	msgID, exists := ts.lastAlertMsgIDs[deviceID]
	delete(ts.lastAlertMsgIDs, deviceID)
	ts.mu.Unlock()

	if !exists {
		return
	}

	if _, err := ts.bot.Request(tgbotapi.NewDeleteMessage(ts.chatID, msgID)); err != nil {
		ts.logger.Warn("Failed to delete previous alert message",
			zap.String("device_id", deviceID),
			zap.Int("message_id", msgID),
			zap.Error(err))
	}
}

// formatAlertMessage creates a mobile-friendly, formatted alert message
func (ts *TelegramService) formatAlertMessage(transition models.AlertTransition) string {
	var sb strings.Builder

	sb.WriteString("🔥 <b>SmartFireX Alert!</b> 🔥\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", transition.DeviceName))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", transition.OccurredAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⚠️ %s\n", transition.Message))

	if state := transition.State; state != nil {
		sb.WriteString("\n📊 <b>Current Readings:</b>\n")
		if state.GasStatus != "" {
			sb.WriteString(fmt.Sprintf("💨 Gas: %s\n", state.GasStatus))
		}
		if state.HasSmoke {
			sb.WriteString(fmt.Sprintf("🌫️ Smoke: %.0f\n", state.SmokeLevel))
		}
		if state.Temperature != nil {
			sb.WriteString(fmt.Sprintf("🌡️ Temperature: %.1f°C\n", *state.Temperature))
		}
		if state.Humidity != nil {
			sb.WriteString(fmt.Sprintf("💧 Humidity: %.1f%%\n", *state.Humidity))
		}
	}

	sb.WriteString("\n🔴 <b>Status:</b> ATTENTION REQUIRED")

	return sb.String()
}

func (ts *TelegramService) formatClearedMessage(transition models.AlertTransition) string {
	var sb strings.Builder

	sb.WriteString("✅ <b>SmartFireX Alert Cleared</b>\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", transition.DeviceName))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", transition.OccurredAt.Format("2006-01-02 15:04:05")))
	sb.WriteString("🟢 Alert cleared - situation safe")

	return sb.String()
}

// SendStatusMessage sends a general status message
func (ts *TelegramService) SendStatusMessage(message string) error {
	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = "HTML"

	_, err := ts.bot.Send(msg)
	return err
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>SmartFireX CPE Service Started</b>\n\n" +
		"📡 Connected to Firebase Realtime Database\n" +
		"🤖 Telegram notifications active\n" +
		"👀 Watching device states for alert transitions...\n\n" +
		"✅ System is ready and operational!"

	return ts.SendStatusMessage(message)
}
