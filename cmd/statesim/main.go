package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/models"
	"github.com/BinateWizard/smartfirex-cpe/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	rps        = flag.Int("rps", 1, "State updates per second")
	deviceID   = flag.String("device", "SFX-MOCK-001", "Device ID for mock data")
	alertProb  = flag.Float64("alert", 0.1, "Probability of an alert-shaped update (0.0-1.0)")
	mqttBroker = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser   = flag.String("user", "smartfirex", "MQTT username")
	mqttPass   = flag.String("pass", "smartfirex2024", "MQTT password")
)

// MockStateGenerator emits device-state records of the same loose shapes real
// firmware produces: status as string or object, varying smoke field names,
// occasional sensor errors.
type MockStateGenerator struct {
	deviceID  string
	alertProb float64
	baseTemp  float64
	baseHum   float64
	logger    *zap.Logger
}

func NewMockStateGenerator(deviceID string, alertProb float64, logger *zap.Logger) *MockStateGenerator {
	return &MockStateGenerator{
		deviceID:  deviceID,
		alertProb: alertProb,
		baseTemp:  27.0,
		baseHum:   60.0,
		logger:    logger,
	}
}

// GenerateState generates one full device-state record.
func (m *MockStateGenerator) GenerateState() models.DeviceStateRecord {
	isAlert := rand.Float64() < m.alertProb

	temperature := m.baseTemp + rand.Float64()*4.0 - 2.0
	humidity := m.baseHum + rand.Float64()*10.0 - 5.0

	record := models.DeviceStateRecord{
		"deviceId":    m.deviceID,
		"temperature": math.Round(temperature*10) / 10,
		"humidity":    math.Round(humidity*10) / 10,
		"gasStatus":   "normal",
	}

	// Mimic both firmware revisions: status as plain string or as an object
	// with a state field.
	if rand.Float64() < 0.5 {
		record["status"] = "idle"
	} else {
		record["status"] = map[string]interface{}{"state": "idle"}
	}

	// Rotate through the smoke field names older firmware used.
	smokeKey := []string{"smokeLevel", "smoke", "smokeAnalog"}[rand.Intn(3)]
	record[smokeKey] = float64(rand.Intn(800))

	if isAlert {
		switch rand.Intn(5) {
		case 0:
			record["status"] = map[string]interface{}{"state": "alert"}
		case 1:
			record["gasStatus"] = []string{"critical", "detected"}[rand.Intn(2)]
		case 2:
			record["sensorError"] = true
		case 3:
			record["lastType"] = "alarm"
			record["message"] = "alarm has been triggered"
		case 4:
			record[smokeKey] = float64(1501 + rand.Intn(2000))
		}
	}

	return record
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	topic := fmt.Sprintf("devices/%s/state", *deviceID)

	logger.Info("Device state simulator started",
		zap.String("device_id", *deviceID),
		zap.Int("rps", *rps),
		zap.Float64("alert_probability", *alertProb),
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("mqtt_topic", topic),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	// Initialize MQTT client (simulating the ESP32 firmware)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("%s-simulator", *deviceID))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker",
			zap.String("broker", *mqttBroker))
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	mockGen := NewMockStateGenerator(*deviceID, *alertProb, logger)
	classifier := services.NewAlertClassifier()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping simulator")
		cancel()
	}()

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Starting to publish mock device states",
		zap.Duration("interval", interval))

	messageCount := 0
	alertCount := 0
	startTime := time.Now()

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(startTime)
			logger.Info("Shutting down gracefully",
				zap.Int("total_messages", messageCount),
				zap.Int("alerts_generated", alertCount),
				zap.Duration("total_uptime", elapsed),
			)

			mqttClient.Disconnect(250)
			logger.Info("Shutdown complete")
			return

		case <-ticker.C:
			record := mockGen.GenerateState()

			if classifier.IsAlert(models.ParseDeviceState(record)) {
				alertCount++
			}

			jsonData, err := json.Marshal(record)
			if err != nil {
				logger.Error("Failed to marshal device state", zap.Error(err))
				continue
			}

			token := mqttClient.Publish(topic, 0, false, jsonData)
			if token.Wait() && token.Error() != nil {
				logger.Error("Failed to publish MQTT message",
					zap.Error(token.Error()),
					zap.Int("message_count", messageCount))
				continue
			}

			messageCount++
			if messageCount%100 == 0 {
				logger.Info("MQTT messages published",
					zap.Int("count", messageCount),
					zap.Int("alerts", alertCount),
					zap.Float64("rate", float64(messageCount)/time.Since(startTime).Seconds()),
				)
			}

		case <-statsTicker.C:
			alertRate := 0.0
			if messageCount > 0 {
				alertRate = float64(alertCount) / float64(messageCount) * 100
			}

			logger.Info("Statistics",
				zap.Int("total_messages", messageCount),
				zap.Int("alerts", alertCount),
				zap.Float64("alert_rate_percent", alertRate),
				zap.Duration("uptime", time.Since(startTime)),
			)
		}
	}
}
