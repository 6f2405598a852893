package redis

import (
	"fmt"

	"github.com/Belogorec/marsu-bot2/internal/model"
)

// Key prefix for all airdrop data
const keyPrefix = "airdrop"

// participantKey returns the Redis key for a Participant
func participantKey(id model.ParticipantID) string {
	return fmt.Sprintf("%s:participant:%s", keyPrefix, id)
}

// participantsIndexKey returns the Redis key for the SET of all participant IDs
func participantsIndexKey() string {
	return fmt.Sprintf("%s:idx:participants", keyPrefix)
}

// referralsIndexKey returns the Redis key for the SET of participants invited by referrer
func referralsIndexKey(referrer model.ParticipantID) string {
	return fmt.Sprintf("%s:idx:referrals:%s", keyPrefix, referrer)
}

// auditStreamKey returns the Redis key for the audit event stream
func auditStreamKey() string {
	return fmt.Sprintf("%s:audit", keyPrefix)
}
