package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

// Notification records an outbound customer email and its delivery outcome.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string                 `gorm:"not null;index"`
	Kind        enums.NotificationKind `gorm:"type:notification_kind;not null"`
	Recipient   string                 `gorm:"not null"`
	Subject     string                 `gorm:"type:text;not null"`
	Body        string                 `gorm:"type:text;not null"`
	Delivered   bool                   `gorm:"not null;default:false"`
	Attempts    int                    `gorm:"not null;default:0"`
	LastError   *string                `gorm:"type:text"`
	SentAt      *time.Time             `gorm:"type:timestamptz"`
	CreatedAt   time.Time              `gorm:"type:timestamptz;default:now()"`
}
