package vouch

import (
	"encoding/binary"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

// PendingVouch is a qualifying action awaiting a human decision. The entry
// lives in process memory only; restarts drop the queue.
type PendingVouch struct {
	ID          string `json:"id"`
	GuildID     string `json:"guild"`
	UserID      string `json:"user"`
	ChannelID   string `json:"channel"`
	MessageID   string `json:"message"`
	EvidenceURL string `json:"evidenceUrl,omitempty"`

	// EvidenceDigest is the canonical hash of EvidenceURL, recorded so the
	// audit trail can match resubmissions of the same evidence even after the
	// URL itself expires.
	EvidenceDigest string `json:"evidenceDigest,omitempty"`

	MatchedRole string `json:"matchedRole,omitempty"`
	SubmittedAt int64  `json:"submittedAt"`

	// VerifyChannel is the guild's verification route at submission time, so
	// callers know where the approval prompt belongs.
	VerifyChannel string `json:"verifyChannel"`
}

// Submission carries the inputs for a new pending vouch.
type Submission struct {
	GuildID     string
	UserID      string
	ChannelID   string
	MessageID   string
	EvidenceURL string
	MatchedRole string
}

// Decision reports the terminal transition of a pending vouch.
type Decision struct {
	Approved   bool
	NewBalance uint64
	Vouch      PendingVouch
}

// ComputeVouchID derives the deterministic identifier for a pending vouch
// from its composite key (guild, user, submission time).
func ComputeVouchID(guildID, userID string, submittedAt int64) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(submittedAt))
	digest := ethcrypto.Keccak256([]byte(guildID), []byte{0}, []byte(userID), []byte{0}, ts[:])
	return hex.EncodeToString(digest)
}

// EvidenceDigest returns the canonical hex-encoded hash of an evidence
// reference. An empty reference has no digest.
func EvidenceDigest(evidenceURL string) string {
	if evidenceURL == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(evidenceURL))
	return hex.EncodeToString(sum[:])
}
