package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

type channelPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) (int64, error)
}

// NotificationPublisher pushes stored notifications to live subscribers over Redis pub/sub.
type NotificationPublisher struct {
	client  channelPublisher
	enabled bool
}

// NewNotificationPublisher constructs the publisher.
func NewNotificationPublisher(client channelPublisher, enabled bool) *NotificationPublisher {
	return &NotificationPublisher{client: client, enabled: enabled}
}

// Publish sends the notification on the recipient's channel.
func (p *NotificationPublisher) Publish(ctx context.Context, notification *models.Notification) error {
	if p == nil || !p.enabled || p.client == nil || notification == nil {
		return nil
	}
	_, err := p.client.Publish(ctx, NotificationChannel(notification.UserID), notification)
	return err
}

// NotificationChannel is the pub/sub channel carrying a user's notifications.
func NotificationChannel(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}
