// Package domain defines the persistence models for LINE contacts and their
// messages, plus the typed webhook event descriptors consumed by the
// ingestion pipeline. The persistence types are mapped with GORM and form
// the core data layer of the CRM backend.
package domain

import (
	"time"
)

// User represents a LINE contact known to the CRM. A row is created the
// first time an inbound event references an unknown line_user_id, and is
// never hard-deleted by the ingestion pipeline.
//
// Fields:
//   - ID: internal numeric identity (autoincrement primary key).
//   - LineUserID: platform-assigned identity; unique, immutable, and the
//     natural key for idempotent creation.
//   - DisplayName / PictureURL / StatusMessage / Language: profile
//     enrichment data fetched from the LINE Profile API; all nullable.
//   - ERPBiCode / ERPBiName: optional correlation fields to the external
//     ERP system, maintained from the dashboard.
//   - IsActive: false after an unfollow (block), true again on follow.
//   - FirstMessageAt / LastMessageAt: platform event timestamps; nil until
//     the first message arrives.
//   - MessageCount / UnreadCount: running counters maintained only by the
//     ingestion pipeline (the dashboard may reset UnreadCount to zero on an
//     explicit mark-read, nothing else).
//   - Tags / Notes: free-form CRM fields edited from the dashboard.
//   - CreatedAt / UpdatedAt: audit timestamps managed by GORM.
type User struct {
	ID             uint       `json:"id"               gorm:"primaryKey"`
	LineUserID     string     `json:"line_user_id"     gorm:"type:TEXT;not null;uniqueIndex:ux_users_line_user_id"`
	DisplayName    *string    `json:"display_name"     gorm:"type:TEXT"`
	PictureURL     *string    `json:"picture_url"      gorm:"type:TEXT"`
	StatusMessage  *string    `json:"status_message"   gorm:"type:TEXT"`
	Language       *string    `json:"language"         gorm:"type:TEXT"`
	ERPBiCode      *string    `json:"erp_bi_code"      gorm:"column:erp_bi_code;type:TEXT"`
	ERPBiName      *string    `json:"erp_bi_name"      gorm:"column:erp_bi_name;type:TEXT"`
	IsActive       bool       `json:"is_active"        gorm:"not null;default:true;index:idx_users_is_active"`
	FirstMessageAt *time.Time `json:"first_message_at"`
	LastMessageAt  *time.Time `json:"last_message_at"  gorm:"index:idx_users_last_message_at,sort:desc"`
	MessageCount   int        `json:"message_count"    gorm:"not null;default:0"`
	UnreadCount    int        `json:"unread_count"     gorm:"not null;default:0"`
	Tags           []string   `json:"tags"             gorm:"type:TEXT;serializer:json"`
	Notes          *string    `json:"notes"            gorm:"type:TEXT"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message is an immutable record of one inbound chat event of kind message.
// A row is created exactly once per distinct line_message_id; the unique
// index on that column is what turns redelivered webhook events into no-ops.
//
// Binary message kinds (image/file/audio/video) only carry file metadata
// placeholders; downloading the content into object storage is downstream
// async work gated on the Processed flag.
type Message struct {
	ID            uint        `json:"id"              gorm:"primaryKey"`
	LineMessageID string      `json:"line_message_id" gorm:"type:TEXT;not null;uniqueIndex:ux_messages_line_message_id"`
	UserID        uint        `json:"user_id"         gorm:"not null;index:idx_messages_user_id"`
	MessageType   MessageKind `json:"message_type"    gorm:"type:TEXT;not null;index:idx_messages_message_type"`
	TextContent   *string     `json:"text_content"    gorm:"type:TEXT"`
	FileID        *string     `json:"file_id"         gorm:"type:TEXT"`
	FileName      *string     `json:"file_name"       gorm:"type:TEXT"`
	FilePath      *string     `json:"file_path"       gorm:"type:TEXT"`
	FileSize      *int64      `json:"file_size"`
	FileType      *string     `json:"file_type"       gorm:"type:TEXT"`
	Timestamp     time.Time   `json:"timestamp"       gorm:"not null;index:idx_messages_timestamp,sort:desc"`
	Processed     bool        `json:"processed"       gorm:"not null;default:false"`
	Metadata      *string     `json:"metadata"        gorm:"type:TEXT"`
	CreatedAt     time.Time   `json:"created_at"`

	// User is the owning contact. Messages are cascade-deleted if their
	// user row is removed.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageLimit is a named capacity cap (e.g. max_messages, max_users) with
// its current usage. Limits are surfaced on the dashboard overview; an
// inactive limit is informational only.
type MessageLimit struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	LimitType    string    `json:"limit_type"    gorm:"type:TEXT;not null;uniqueIndex:ux_message_limits_limit_type"`
	LimitValue   int64     `json:"limit_value"   gorm:"not null;default:0"`
	CurrentCount int64     `json:"current_count" gorm:"not null;default:0"`
	IsActive     bool      `json:"is_active"     gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for MessageLimit.
func (MessageLimit) TableName() string { return "message_limits" }

// SystemStat is one named counter snapshot (total contacts, total messages)
// refreshed whenever the dashboard overview is computed.
type SystemStat struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	StatName  string    `json:"stat_name"  gorm:"type:TEXT;not null;uniqueIndex:ux_system_stats_stat_name"`
	StatValue int64     `json:"stat_value" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SystemStat.
func (SystemStat) TableName() string { return "system_stats" }
