package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UploadLink is a capability token handed to a studio's client. A link is
// usable iff it is active, unexpired, and (when bounded) not exhausted.
// Links are never deleted, only deactivated, so the audit trail survives.
type UploadLink struct {
	bun.BaseModel `bun:"table:upload.links,alias:l"`

	ID         uuid.UUID `bun:"type:uuid,default:gen_random_uuid(),pk"`
	Token      string    `bun:",unique,notnull"`
	ProjectRef string    `bun:",notnull"`
	ClientRef  string    `bun:",notnull"`
	ExpiresAt  time.Time `bun:",notnull"`
	MaxUses    *int      `bun:",nullzero"` // nil = unlimited
	UsedCount  int       `bun:",notnull,default:0"`
	IsActive   bool      `bun:",notnull,default:true"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
