package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateStatus string

const (
	StatusActive    CertificateStatus = "active"
	StatusRevoked   CertificateStatus = "revoked"
	StatusSuspended CertificateStatus = "suspended"
)

// Valid reports whether s is one of the known certificate statuses.
func (s CertificateStatus) Valid() bool {
	switch s {
	case StatusActive, StatusRevoked, StatusSuspended:
		return true
	}
	return false
}

// PublicationState tracks whether a fingerprint has been anchored to the external ledger.
type PublicationState string

const (
	PublicationUnpublished PublicationState = "unpublished"
	PublicationStaged      PublicationState = "staged"
	PublicationPublished   PublicationState = "published"
)

func (p PublicationState) rank() int {
	switch p {
	case PublicationUnpublished:
		return 0
	case PublicationStaged:
		return 1
	case PublicationPublished:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether the state may move forward to next. States never regress
// and a transition to the same state is not an advance.
func (p PublicationState) CanAdvanceTo(next PublicationState) bool {
	from, to := p.rank(), next.rank()
	return from >= 0 && to >= 0 && to > from
}

// Predecessors lists the states that may advance to p.
func (p PublicationState) Predecessors() []PublicationState {
	var out []PublicationState
	for _, s := range []PublicationState{PublicationUnpublished, PublicationStaged, PublicationPublished} {
		if s.CanAdvanceTo(p) {
			out = append(out, s)
		}
	}
	return out
}

// Certificate is one issued student certificate. Descriptive and ownership fields are
// immutable after creation; FingerprintHash is derived from them once, at creation.
type Certificate struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CertificateNumber string            `gorm:"column:certificate_number;uniqueIndex;not null" json:"certificate_number"`
	FingerprintHash   string            `gorm:"column:fingerprint_hash;type:varchar(66);uniqueIndex;not null" json:"fingerprint_hash"`
	StudentName       string            `gorm:"column:student_name;not null" json:"student_name"`
	RollNumber        string            `gorm:"column:roll_number;index;not null" json:"roll_number"`
	Course            string            `gorm:"column:course;not null" json:"course"`
	GraduationYear    int               `gorm:"column:graduation_year;not null" json:"graduation_year"`
	Marks             string            `gorm:"column:marks;not null" json:"marks"`
	IssueDate         *time.Time        `gorm:"column:issue_date;type:date" json:"issue_date"`
	IssuerID          uuid.UUID         `gorm:"column:issuer_id;type:uuid;index;not null" json:"issuer_id"`
	IssuerName        string            `gorm:"column:issuer_name;not null" json:"issuer_name"`
	IssuerCode        string            `gorm:"column:issuer_code" json:"issuer_code"`
	Source            string            `gorm:"column:source;type:varchar(20);not null;default:'api'" json:"source"`
	Status            CertificateStatus `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	PublicationState  PublicationState  `gorm:"column:publication_state;type:varchar(20);index;not null;default:'unpublished'" json:"publication_state"`
	ExternalTxRef     *string           `gorm:"column:external_tx_ref" json:"external_tx_ref"`
	LedgerBlock       *uint64           `gorm:"column:ledger_block" json:"ledger_block"`
	PublishedAt       *time.Time        `gorm:"column:published_at" json:"published_at"`
	VerificationCount int64             `gorm:"column:verification_count;not null;default:0" json:"verification_count"`
	LastVerifiedAt    *time.Time        `gorm:"column:last_verified_at" json:"last_verified_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// BeforeCreate fills the id and lifecycle defaults for DBs without column defaults.
func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	c.applyDefaults()
	return nil
}

func (c *Certificate) applyDefaults() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.PublicationState == "" {
		c.PublicationState = PublicationUnpublished
	}
	if c.Source == "" {
		c.Source = "api"
	}
}

// PrepareForInsert applies the same defaults as the GORM hook; stores without hooks call it.
func (c *Certificate) PrepareForInsert(now time.Time) {
	c.applyDefaults()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
}

// PublicationTransition is a conditional publication-state update. It applies only when the
// row still belongs to IssuerID, still carries ExpectedHash and sits in a predecessor of To.
type PublicationTransition struct {
	CertificateID uuid.UUID
	IssuerID      uuid.UUID
	ExpectedHash  string
	To            PublicationState
	ExternalTxRef string
	LedgerBlock   *uint64
	At            time.Time
}
