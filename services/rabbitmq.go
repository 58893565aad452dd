package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/config"
	"github.com/BinateWizard/smartfirex-cpe/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQService consumes the live device-state feed. Devices publish their
// full current record to devices/<id>/state over MQTT; the broker bridges
// those into amq.topic, where this consumer picks them up. This is the
// low-latency path that drives the watcher and dispatcher; the recorder
// follows the durable RTDB feed independently.
type RabbitMQService struct {
	config    *config.Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *zap.Logger
	reconnect chan bool
	isClosing bool
}

// NewRabbitMQService creates a new RabbitMQ service instance
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config:    cfg,
		logger:    logger,
		reconnect: make(chan bool),
		isClosing: false,
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	return service, nil
}

// connect establishes connection to RabbitMQ and declares exchange and queue
func (r *RabbitMQService) connect() error {
	var err error

	r.logger.Info("Connecting to RabbitMQ", zap.String("url", r.config.RabbitMQURL))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.logger.Info("Connected to RabbitMQ successfully")

	r.channel, err = r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Prefetch a handful of state updates at a time.
	err = r.channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = r.channel.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"topic",                   // type - topic exchange for devices.*.state
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.logger.Info("Exchange declared", zap.String("exchange", r.config.RabbitMQExchange))

	queue, err := r.channel.QueueDeclare(
		r.config.RabbitMQQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.logger.Info("Queue declared", zap.String("queue", queue.Name))

	// One state topic per device.
	routingKey := "devices.*.state"

	err = r.channel.QueueBind(
		queue.Name,                // queue name
		routingKey,                // routing key
		r.config.RabbitMQExchange, // exchange
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info("Queue bound to exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange),
		zap.String("routing_key", routingKey))

	// Bind queue to amq.topic (for MQTT-published device states)
	err = r.channel.QueueBind(
		queue.Name,  // queue name
		routingKey,  // routing key (MQTT topic, dotted form)
		"amq.topic", // MQTT default exchange
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue to MQTT exchange: %w", err)
	}

	r.logger.Info("Queue bound to MQTT exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", "amq.topic"),
		zap.String("routing_key", routingKey))

	go r.handleReconnect()

	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *RabbitMQService) handleReconnect() {
	for {
		closeErr := <-r.conn.NotifyClose(make(chan *amqp.Error))
		if r.isClosing {
			r.logger.Info("RabbitMQ connection closed gracefully")
			return
		}

		r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

		for {
			r.logger.Info("Attempting to reconnect to RabbitMQ...")
			err := r.connect()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				r.reconnect <- true
				break
			}

			r.logger.Error("Failed to reconnect", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

// Consume starts consuming device-state updates from the queue.
func (r *RabbitMQService) Consume(ctx context.Context, updateChan chan<- *models.DeviceStateUpdate) error {
	for {
		msgs, err := r.channel.Consume(
			r.config.RabbitMQQueue, // queue
			"smartfirex-cpe",       // consumer tag
			false,                  // auto-ack (false = manual ack)
			false,                  // exclusive
			false,                  // no-local
			false,                  // no-wait
			nil,                    // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming device states from RabbitMQ",
			zap.String("queue", r.config.RabbitMQQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed")
					time.Sleep(1 * time.Second)
					break consumeLoop
				}

				if err := r.processMessage(msg, updateChan); err != nil {
					r.logger.Error("Failed to process message",
						zap.Error(err),
						zap.String("routing_key", msg.RoutingKey))

					// Negative acknowledgment - requeue the message
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}
}

// processMessage parses one delivery into a DeviceStateUpdate and forwards
// it. A record of unexpected shape is not an error: it parses to a state the
// classifier treats as not-alert.
func (r *RabbitMQService) processMessage(msg amqp.Delivery, updateChan chan<- *models.DeviceStateUpdate) error {
	var record models.DeviceStateRecord
	if err := json.Unmarshal(msg.Body, &record); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	deviceID := deviceIDFromRoutingKey(msg.RoutingKey)
	if deviceID == "" {
		// Older firmware carries the id in the payload instead.
		deviceID, _ = record["deviceId"].(string)
	}
	if deviceID == "" {
		return fmt.Errorf("invalid device state: missing device id")
	}

	update := &models.DeviceStateUpdate{
		DeviceID:   deviceID,
		State:      models.ParseDeviceState(record),
		ReceivedAt: time.Now(),
	}

	r.logger.Debug("Received device state from RabbitMQ",
		zap.String("device_id", deviceID),
		zap.String("routing_key", msg.RoutingKey),
		zap.Time("received_at", update.ReceivedAt))

	// Send to processing channel (non-blocking with timeout)
	select {
	case updateChan <- update:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout sending to processing channel")
	}
}

// deviceIDFromRoutingKey extracts the device id from a devices.<id>.state
// routing key. Returns "" when the key has a different shape.
func deviceIDFromRoutingKey(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) == 3 && parts[0] == "devices" && parts[2] == "state" {
		return parts[1]
	}
	return ""
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing = true

	r.logger.Info("Closing RabbitMQ connection")

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}

// Publish publishes a device state to RabbitMQ (useful for testing)
func (r *RabbitMQService) Publish(deviceID string, record models.DeviceStateRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	err = r.channel.Publish(
		r.config.RabbitMQExchange,                   // exchange
		fmt.Sprintf("devices.%s.state", deviceID),   // routing key
		false,                                       // mandatory
		false,                                       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.logger.Debug("Published device state to RabbitMQ",
		zap.String("device_id", deviceID))

	return nil
}
