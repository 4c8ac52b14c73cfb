package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crane-availability-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushPayload is the JSON document delivered to browsers.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Event Event  `json:"event"`
}

// WorkerPool manages a pool of workers delivering maintenance events to the
// push subscriptions of the affected crane.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool. With nil webpush options events
// are only logged.
func NewWorkerPool(size, queueDepth int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, queueDepth), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case ev := <-wp.jobs:
			wp.deliver(ctx, ev)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Publish queues an event. A full queue drops the event rather than block
// the state transition that produced it.
func (wp *WorkerPool) Publish(ctx context.Context, ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		wp.log.Warn("notification queue full, dropping event",
			zap.String("kind", string(ev.Kind)), zap.Int64("crane_id", ev.CraneID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// deliver fetches the crane's subscriptions and pushes the event to each.
func (wp *WorkerPool) deliver(ctx context.Context, ev Event) {
	log := wp.log.With(zap.String("kind", string(ev.Kind)), zap.Int64("crane_id", ev.CraneID))
	log.Info("maintenance event", zap.Time("start", ev.StartTime), zap.Time("end", ev.EndTime), zap.Bool("manual", ev.Manual))

	if wp.webpush == nil || wp.db == nil {
		return
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_crane_mapping scm ON scm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("scm.crane_id = ?", ev.CraneID).
		Find(&subscriptions).Error
	if err != nil {
		log.Error("failed to fetch subscriptions", zap.Error(err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var crane model.Crane
	craneLabel := fmt.Sprintf("%d", ev.CraneID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&crane, ev.CraneID).Error; err != nil {
		log.Warn("failed to fetch crane name", zap.Error(err))
	} else if crane.Name != "" {
		craneLabel = crane.Name
	}

	payload, err := json.Marshal(pushPayload{
		Title: "Crane maintenance",
		Body:  ev.Message(craneLabel),
		Event: ev,
	})
	if err != nil {
		log.Error("failed to encode push payload", zap.Error(err))
		return
	}

	log.Info("sending notifications", zap.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
