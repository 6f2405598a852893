package model

import (
	"regexp"
	"strings"
)

const (
	// PayoutAddressMinLength and PayoutAddressMaxLength bound a base58 payout address
	PayoutAddressMinLength = 32
	PayoutAddressMaxLength = 44

	// referralPrefix is the optional deep-link prefix on referral tokens
	referralPrefix = "ref_"
	// maxIdentityDigits bounds a numeric gateway identity
	maxIdentityDigits = 20
)

// base58 alphabet: no 0, I, O or l
var payoutAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// NormalizePayoutAddress strips surrounding whitespace from user input
func NormalizePayoutAddress(raw string) string {
	return strings.TrimSpace(raw)
}

// ValidatePayoutAddress checks an already-normalized address against the network format
func ValidatePayoutAddress(address string) error {
	if !payoutAddressPattern.MatchString(address) {
		return ErrInvalidAddress
	}
	return nil
}

// ParseReferralToken extracts a referrer identity from a start argument.
// Accepts "12345" or "ref_12345"; anything else yields ok == false.
func ParseReferralToken(token string) (ParticipantID, bool) {
	token = strings.TrimPrefix(strings.TrimSpace(token), referralPrefix)
	if token == "" || len(token) > maxIdentityDigits {
		return "", false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return ParticipantID(token), true
}

// ReferralToken renders the deep-link token for an identity
func ReferralToken(id ParticipantID) string {
	return referralPrefix + string(id)
}
