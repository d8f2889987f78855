package jobs

import (
	"context"
	"log"

	"warmth/internal/models"
	"warmth/internal/services"
)

// UserSource lists the users a scan should visit
type UserSource interface {
	Users() []string
}

// CheckinDeliverer sends the check-in message, reporting false when a guard held it back
type CheckinDeliverer interface {
	DeliverCheckin(ctx context.Context, userID string) (bool, error)
}

// CheckinNotifier is told about check-ins that were delivered
type CheckinNotifier interface {
	NotifyCheckin(ctx context.Context, userID string, signal models.CheckinSignal) error
}

// LogNotifier records check-ins in the server log
type LogNotifier struct{}

// NotifyCheckin logs the check-in
func (LogNotifier) NotifyCheckin(ctx context.Context, userID string, signal models.CheckinSignal) error {
	log.Printf("💛 [CHECKIN] Checked in on user %s (avg mood %.2f, trend %s)", userID, signal.AvgMood, signal.Trend)
	return nil
}

// CheckinScanJob computes the check-in signal for known users and delivers a check-in on
// negative trends
type CheckinScanJob struct {
	mood      *services.MoodTracker
	users     UserSource
	deliverer CheckinDeliverer
	notifier  CheckinNotifier
}

// NewCheckinScanJob creates a new check-in scan job. A nil notifier logs.
func NewCheckinScanJob(mood *services.MoodTracker, users UserSource, deliverer CheckinDeliverer, notifier CheckinNotifier) *CheckinScanJob {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &CheckinScanJob{mood: mood, users: users, deliverer: deliverer, notifier: notifier}
}

// Run scans every user once
func (j *CheckinScanJob) Run(ctx context.Context) error {
	users := j.users.Users()
	flagged, delivered := 0, 0

	for _, userID := range users {
		select {
		case <-ctx.Done():
			log.Println("[CHECKIN] Cancelled")
			return ctx.Err()
		default:
		}

		signal := j.mood.Checkin(ctx, userID)
		if !signal.IsNegativeTrend {
			continue
		}
		flagged++

		sent, err := j.deliverer.DeliverCheckin(ctx, userID)
		if err != nil {
			log.Printf("⚠️ [CHECKIN] Failed to deliver check-in for user %s: %v", userID, err)
			continue
		}
		if !sent {
			continue
		}
		delivered++

		if err := j.notifier.NotifyCheckin(ctx, userID, signal); err != nil {
			log.Printf("⚠️ [CHECKIN] Failed to notify for user %s: %v", userID, err)
		}
	}

	log.Printf("[CHECKIN] Scan complete: %d users checked, %d flagged, %d delivered", len(users), flagged, delivered)
	return nil
}
