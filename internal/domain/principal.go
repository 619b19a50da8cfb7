package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Issuer is a certificate-issuing institution (university).
type Issuer struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	Code              string    `gorm:"column:code;type:varchar(20);uniqueIndex;not null" json:"code"`
	APIKeyID          string    `gorm:"column:api_key_id;uniqueIndex;not null" json:"-"`
	APIKeyHash        string    `gorm:"column:api_key_hash;not null" json:"-"`
	CertificatesCount int64     `gorm:"column:certificates_count;not null;default:0" json:"certificates_count"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Issuer) TableName() string {
	return "issuers"
}

func (i *Issuer) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Verifier is an agency that runs verification checks.
type Verifier struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name               string     `gorm:"column:name;not null" json:"name"`
	Organization       string     `gorm:"column:organization;not null" json:"organization"`
	APIKeyID           string     `gorm:"column:api_key_id;uniqueIndex;not null" json:"-"`
	APIKeyHash         string     `gorm:"column:api_key_hash;not null" json:"-"`
	Active             bool       `gorm:"column:active;not null;default:true" json:"active"`
	VerificationCount  int64      `gorm:"column:verification_count;not null;default:0" json:"verification_count"`
	LastVerificationAt *time.Time `gorm:"column:last_verification_at" json:"last_verification_at"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Verifier) TableName() string {
	return "verifiers"
}

func (v *Verifier) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
