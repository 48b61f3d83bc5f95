package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type verificationAttemptRecord struct {
	bun.BaseModel `bun:"table:callpass_verification_attempts,alias:cva"`

	Token        string     `bun:"token,pk"`
	PhoneNumber  string     `bun:"phone_number,notnull"`
	Name         string     `bun:"name,notnull"`
	Reason       string     `bun:"reason"`
	VoicePingRef string     `bun:"voice_ping_ref"`
	Status       string     `bun:"status,notnull"`
	CompletedAt  *time.Time `bun:"completed_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt    time.Time  `bun:"expires_at,notnull"`
}

type passRecord struct {
	bun.BaseModel `bun:"table:callpass_passes,alias:cp"`

	ID            string     `bun:"id,pk"`
	PhoneNumber   string     `bun:"phone_number,notnull"`
	Scope         string     `bun:"scope,notnull"`
	GrantedBy     string     `bun:"granted_by,notnull"`
	GrantedToName string     `bun:"granted_to_name"`
	UsedCount     int        `bun:"used_count,notnull"`
	MaxUses       *int       `bun:"max_uses"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull"`
}
