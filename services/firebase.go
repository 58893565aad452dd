package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/config"
	"github.com/BinateWizard/smartfirex-cpe/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirebaseService owns the durable stores: the RTDB live device-state tree
// (the feed the recorder trusts), the per-device status-history ring buffer,
// and the Firestore device-registration and notification collections.
type FirebaseService struct {
	rtdb      *db.Client
	firestore *firestore.Client
	auth      *auth.Client
	config    *config.Config
	logger    *zap.Logger
}

func NewFirebaseService(cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	ctx := context.Background()

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	rtdbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %v", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %v", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %v", err)
	}

	fs := &FirebaseService{
		rtdb:      rtdbClient,
		firestore: fsClient,
		auth:      authClient,
		config:    cfg,
		logger:    logger,
	}

	if err := fs.testConnection(); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %v", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection() error {
	ctx := context.Background()
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		ref := fs.rtdb.NewRef("/")
		var data interface{}
		err := ref.Get(ctx, &data)

		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// SubscribeToDeviceFeed polls the devices tree and invokes the callback with
// the full current record of every device whose snapshot changed since the
// previous poll. Full-replace semantics: the callback always sees the whole
// record, never a delta. Returns after starting the polling goroutine.
func (fs *FirebaseService) SubscribeToDeviceFeed(ctx context.Context, callback func(*models.DeviceStateUpdate)) error {
	ref := fs.rtdb.NewRef("devices")

	// Serialized raw snapshot per device, for change detection between polls.
	lastSeen := make(map[string][]byte)

	go func() {
		defer fs.logger.Info("Device feed polling stopped")

		ticker := time.NewTicker(fs.config.FeedPollInterval)
		defer ticker.Stop()

		fs.logger.Info("Starting device feed polling",
			zap.Duration("interval", fs.config.FeedPollInterval))

		for {
			select {
			case <-ctx.Done():
				fs.logger.Info("Device feed polling received shutdown signal")
				return
			case <-ticker.C:
				var data map[string]models.DeviceStateRecord
				if err := ref.Get(ctx, &data); err != nil {
					fs.logger.Error("Error getting device states", zap.Error(err))
					continue
				}

				for deviceID, raw := range data {
					// statusHistory lives under the device node but is not
					// telemetry; drop it before change detection.
					record := make(models.DeviceStateRecord, len(raw))
					for k, v := range raw {
						if k == "statusHistory" {
							continue
						}
						record[k] = v
					}

					serialized, err := json.Marshal(record)
					if err != nil {
						fs.logger.Warn("Unserializable device record",
							zap.String("device_id", deviceID),
							zap.Error(err))
						continue
					}

					if bytes.Equal(lastSeen[deviceID], serialized) {
						continue
					}
					lastSeen[deviceID] = serialized

					callback(&models.DeviceStateUpdate{
						DeviceID:   deviceID,
						State:      models.ParseDeviceState(record),
						ReceivedAt: time.Now(),
					})
				}
			}
		}
	}()

	return nil
}

// AppendHistory pushes one entry onto the device's status history.
func (fs *FirebaseService) AppendHistory(ctx context.Context, deviceID string, entry models.StatusHistoryEntry) error {
	ref := fs.rtdb.NewRef(fmt.Sprintf("devices/%s/statusHistory", deviceID))
	if _, err := ref.Push(ctx, entry); err != nil {
		return fmt.Errorf("error pushing history entry: %v", err)
	}
	return nil
}

// TrimHistory deletes all but the keep newest entries by timestamp. Running
// it twice converges to the same result, which makes the append-then-trim
// step safe under at-least-once feed delivery.
func (fs *FirebaseService) TrimHistory(ctx context.Context, deviceID string, keep int) error {
	ref := fs.rtdb.NewRef(fmt.Sprintf("devices/%s/statusHistory", deviceID))

	var items map[string]models.StatusHistoryEntry
	if err := ref.Get(ctx, &items); err != nil {
		return fmt.Errorf("error reading history: %v", err)
	}
	if len(items) <= keep {
		return nil
	}

	type keyed struct {
		key   string
		entry models.StatusHistoryEntry
	}
	entries := make([]keyed, 0, len(items))
	for key, entry := range items {
		entries = append(entries, keyed{key: key, entry: entry})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.Timestamp > entries[j].entry.Timestamp
	})

	for _, stale := range entries[keep:] {
		if err := ref.Child(stale.key).Delete(ctx); err != nil {
			return fmt.Errorf("error deleting history entry %s: %v", stale.key, err)
		}
	}

	fs.logger.Debug("Trimmed status history",
		zap.String("device_id", deviceID),
		zap.Int("deleted", len(entries)-keep),
	)
	return nil
}

// Registrations returns every user registered against the device, from the
// Firestore devices collection.
func (fs *FirebaseService) Registrations(ctx context.Context, deviceID string) ([]models.DeviceRegistration, error) {
	iter := fs.firestore.Collection("devices").Where("deviceId", "==", deviceID).Documents(ctx)
	defer iter.Stop()

	var regs []models.DeviceRegistration
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error querying device registrations: %v", err)
		}

		data := doc.Data()
		userID, _ := data["addedBy"].(string)
		if userID == "" {
			continue
		}
		name, _ := data["name"].(string)
		regs = append(regs, models.DeviceRegistration{
			UserID:     userID,
			DeviceName: name,
		})
	}

	return regs, nil
}

// Create persists a single notification document.
func (fs *FirebaseService) Create(ctx context.Context, record models.NotificationRecord) error {
	if _, _, err := fs.firestore.Collection("notifications").Add(ctx, record); err != nil {
		return fmt.Errorf("error creating notification: %v", err)
	}
	return nil
}

// CreateBatch persists all records in one atomic Firestore batch: either
// every recipient gets a document or none do.
func (fs *FirebaseService) CreateBatch(ctx context.Context, records []models.NotificationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := fs.firestore.Batch()
	collection := fs.firestore.Collection("notifications")
	for _, record := range records {
		batch.Set(collection.NewDoc(), record)
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("error committing notification batch: %v", err)
	}
	return nil
}

// VerifyIDToken validates a Firebase ID token and returns the caller's uid.
func (fs *FirebaseService) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	token, err := fs.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("error verifying ID token: %v", err)
	}
	return token.UID, nil
}

// Close closes the Firestore connection; the RTDB client needs no explicit
// close.
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	return fs.firestore.Close()
}
