package models

import "time"

// Audit action tags.
const (
	AuditTeamVerified         = "TEAM_VERIFIED"
	AuditTeamRejected         = "TEAM_REJECTED"
	AuditArtifactUploadFailed = "ARTIFACT_UPLOAD_FAILED"
	AuditArtifactRegenerated  = "ARTIFACT_REGENERATED"
	AuditNotificationFailed   = "NOTIFICATION_FAILED"
	AuditNotificationResent   = "NOTIFICATION_RESENT"
	AuditGalleryToggled       = "GALLERY_TOGGLED"
)

// AuditLog is an immutable record of an administrative action taken on a
// team. Rows are only ever inserted.
type AuditLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TeamID      string    `gorm:"size:36;index;not null" json:"team_id"`
	Action      string    `gorm:"size:50;index;not null" json:"action"`
	PerformedBy string    `gorm:"size:255;not null" json:"performed_by"`
	Details     *string   `gorm:"type:text" json:"details"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
