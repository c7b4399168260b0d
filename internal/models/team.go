package models

import "time"

// TeamStatus is the verification state of a team. PENDING is the only
// non-terminal state.
type TeamStatus string

const (
	TeamStatusPending  TeamStatus = "PENDING"
	TeamStatusVerified TeamStatus = "VERIFIED"
	TeamStatusRejected TeamStatus = "REJECTED"
)

type TeamCategory string

const (
	CategorySoftware TeamCategory = "SOFTWARE"
	CategoryHardware TeamCategory = "HARDWARE"
)

// Valid reports whether c is a known category.
func (c TeamCategory) Valid() bool {
	return c == CategorySoftware || c == CategoryHardware
}

// Delivery bookkeeping for the side effects of a decision.
const (
	ArtifactStored  = "stored"
	ArtifactMissing = "missing"

	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

const (
	MinTeamMembers = 2
	MaxTeamMembers = 4
)

// Team is a registered competing group with one project submission.
type Team struct {
	ID                 string       `gorm:"primaryKey;size:36" json:"id"`
	TeamName           string       `gorm:"size:120;not null;index" json:"team_name"`
	Category           TeamCategory `gorm:"size:20;not null;index" json:"category"`
	ProjectTitle       string       `gorm:"size:200;not null" json:"project_title"`
	ProjectDescription string       `gorm:"type:text" json:"project_description"`
	TechStack          string       `gorm:"size:500" json:"tech_stack"`
	ContactName        string       `gorm:"size:120;not null" json:"contact_name"`
	ContactEmail       string       `gorm:"size:255;not null" json:"contact_email"`
	ContactPhone       string       `gorm:"size:30" json:"contact_phone"`
	Institution        string       `gorm:"size:200" json:"institution"`
	MemberCount        int          `gorm:"not null" json:"member_count"`
	PaymentProofURL    string       `gorm:"size:500;not null" json:"payment_proof_url"`
	ExtraDocURL        *string      `gorm:"size:500" json:"extra_doc_url"`
	Status             TeamStatus   `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	VerificationNote   *string      `gorm:"type:text" json:"verification_note"`
	QRCodeURL          *string      `gorm:"size:500" json:"qr_code_url"`
	VerifiedAt         *time.Time   `json:"verified_at"`
	VerifiedBy         *string      `gorm:"size:255" json:"verified_by"`
	ShowInGallery      bool         `gorm:"default:false" json:"show_in_gallery"`

	ArtifactStatus       string     `gorm:"size:20" json:"artifact_status"`
	NotificationStatus   string     `gorm:"size:20;index" json:"notification_status"`
	NotificationAttempts int        `gorm:"default:0" json:"notification_attempts"`
	NotificationError    string     `gorm:"type:text" json:"notification_error,omitempty"`
	NotifiedAt           *time.Time `json:"notified_at"`

	Members   []Member  `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member belongs to exactly one team and is deleted with it.
type Member struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TeamID     string    `gorm:"size:36;index;not null" json:"team_id"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	Name       string    `gorm:"size:120;not null" json:"name"`
	Email      string    `gorm:"size:255;not null" json:"email"`
	Year       string    `gorm:"size:20" json:"year"`
	Department string    `gorm:"size:120" json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Team) TableName() string   { return "teams" }
func (Member) TableName() string { return "members" }

// MemberEmails returns the member addresses in registration order.
func (t *Team) MemberEmails() []string {
	emails := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		emails = append(emails, m.Email)
	}
	return emails
}

func (t *Team) IsDecided() bool {
	return t.Status == TeamStatusVerified || t.Status == TeamStatusRejected
}
