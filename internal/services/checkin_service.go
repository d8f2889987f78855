package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"warmth/internal/models"
)

// CheckinMessage is the proactive message sent to a user whose mood is declining
const CheckinMessage = "I've noticed things have been tough lately. Want to chat about what's on your mind?"

const (
	// A conversation with a message this recent is left alone
	checkinActiveWindow = 2 * time.Hour
	// At most one check-in per user in this window
	checkinRepeatWindow = 24 * time.Hour
)

// Phrases that mark an assistant message as a check-in
var checkinPatterns = []string{
	"noticed things have been tough",
	"want to chat about what's on your mind",
	"thinking of you",
	"how have you been feeling lately",
}

func isCheckinMessage(content string) bool {
	lower := strings.ToLower(content)
	for _, pattern := range checkinPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// DeliverCheckin adds CheckinMessage to the user's conversation unless they talked within the
// last two hours or were already checked on within a day. It reports whether the message was
// delivered; when the guards cannot be evaluated nothing is sent.
func (s *CompanionService) DeliverCheckin(ctx context.Context, userID string) (bool, error) {
	if s.Store == nil {
		return false, errors.New("no message store configured")
	}

	now := s.Clock.Now()
	recent, err := s.RecentMessages(ctx, userID, now.Add(-checkinRepeatWindow))
	if err != nil {
		return false, fmt.Errorf("failed to check recent conversation: %w", err)
	}

	activeSince := now.Add(-checkinActiveWindow)
	for _, msg := range recent {
		if !msg.Timestamp.Before(activeSince) {
			log.Printf("[CHECKIN] Skipping user %s: conversation active", userID)
			return false, nil
		}
		if msg.Role == models.RoleAssistant && isCheckinMessage(msg.Content) {
			log.Printf("[CHECKIN] Skipping user %s: already checked in at %s", userID, msg.Timestamp.Format(time.RFC3339))
			return false, nil
		}
	}

	if err := s.insertMessage(ctx, userID, models.RoleAssistant, CheckinMessage, now); err != nil {
		return false, fmt.Errorf("failed to store check-in message: %w", err)
	}
	s.History.Window(userID).Append(NewTurn(models.RoleAssistant, CheckinMessage, now))

	log.Printf("💛 [CHECKIN] Proactive check-in sent to user %s", userID)
	return true, nil
}
