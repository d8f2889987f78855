package services

import (
	"log"
	"regexp"
)

const crisisResponse = "It sounds like you're going through an incredibly difficult time. " +
	"Please know that you're not alone and there are people who want to help. " +
	"You can connect with someone right now by calling or texting 988 in the US and Canada, " +
	"or by calling 111 in the UK. For resources in other countries, " +
	"you can visit findahelpline.com. Please reach out to them."

const refusalResponse = "Whoa there, let's keep things safe. Tell me something else?"

// SafetyNet screens utterances before any other processing
type SafetyNet struct {
	crisis  *regexp.Regexp
	blocked *regexp.Regexp
	allow   *regexp.Regexp
}

// NewSafetyNet compiles the keyword filters
func NewSafetyNet() *SafetyNet {
	return &SafetyNet{
		crisis:  regexp.MustCompile(`(?i)\b(suicide|kill myself|kys|want to die)\b`),
		blocked: regexp.MustCompile(`(?i)\b(sex|porn|nude|erotic|fuck|bitch|shit)\b`),
		// Context that makes a blocked word acceptable, e.g. "dealing with porn addiction"
		allow: regexp.MustCompile(`(?i)\b(addiction|therapy|discussing|help with|dealing with|problem about)\b`),
	}
}

// CheckCrisis reports self-harm language
func (s *SafetyNet) CheckCrisis(text string) bool {
	return s.crisis.MatchString(text)
}

// CheckBlocked reports explicit content with no mitigating context
func (s *SafetyNet) CheckBlocked(text string) bool {
	if !s.blocked.MatchString(text) {
		return false
	}
	return !s.allow.MatchString(text)
}

// CrisisResponse returns the helpline message
func (s *SafetyNet) CrisisResponse(userID string) string {
	log.Printf("🚨 [SAFETY] Crisis language detected for user %s, returning support response", userID)
	return crisisResponse
}

// Refusal returns the refusal message for blocked content
func (s *SafetyNet) Refusal(userID string) string {
	log.Printf("⚠️ [SAFETY] Refusing blocked content for user %s", userID)
	return refusalResponse
}
