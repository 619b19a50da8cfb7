package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeVerified   Outcome = "verified"
	OutcomeSuspicious Outcome = "suspicious"
	OutcomeNotFound   Outcome = "not_found"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeVerified, OutcomeSuspicious, OutcomeNotFound:
		return true
	}
	return false
}

type Method string

const (
	MethodOCR       Method = "ocr"
	MethodManual    Method = "manual"
	MethodHashMatch Method = "hash_match"
)

func (m Method) Valid() bool {
	switch m {
	case MethodOCR, MethodManual, MethodHashMatch:
		return true
	}
	return false
}

// Anomaly tags recorded on a verification.
const (
	FlagDataMismatch    = "data_mismatch"
	FlagStatusRevoked   = "status_revoked"
	FlagStatusSuspended = "status_suspended"
)

// VerificationLog is the append-only audit entry written once per verification attempt.
type VerificationLog struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VerifierID         *uuid.UUID                  `gorm:"column:verifier_id;type:uuid;index:idx_verification_logs_verifier_time,priority:1" json:"verifier_id"`
	VerifierName       string                      `gorm:"column:verifier_name" json:"verifier_name"`
	CertificateID      *uuid.UUID                  `gorm:"column:certificate_id;type:uuid;index" json:"certificate_id"`
	IssuerID           *uuid.UUID                  `gorm:"column:issuer_id;type:uuid" json:"issuer_id"`
	IssuerName         string                      `gorm:"column:issuer_name;not null" json:"issuer_name"`
	QueriedStudentName string                      `gorm:"column:queried_student_name;not null" json:"queried_student_name"`
	QueriedRollNumber  string                      `gorm:"column:queried_roll_number;not null" json:"queried_roll_number"`
	Outcome            Outcome                     `gorm:"column:outcome;type:varchar(20);index;not null" json:"outcome"`
	Method             Method                      `gorm:"column:method;type:varchar(20);not null" json:"method"`
	Confidence         int                         `gorm:"column:confidence;not null" json:"confidence"`
	Flags              datatypes.JSONSlice[string] `gorm:"column:flags" json:"flags"`
	FingerprintHash    *string                     `gorm:"column:fingerprint_hash" json:"fingerprint_hash"`
	ExternalTxRef      *string                     `gorm:"column:external_tx_ref" json:"external_tx_ref"`
	IPAddress          string                      `gorm:"column:ip_address" json:"ip_address"`
	UserAgent          string                      `gorm:"column:user_agent" json:"user_agent"`
	VerifiedAt         time.Time                   `gorm:"column:verified_at;index;index:idx_verification_logs_verifier_time,priority:2,sort:desc;not null" json:"verified_at"`
}

func (VerificationLog) TableName() string {
	return "verification_logs"
}

func (l *VerificationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Flags == nil {
		l.Flags = datatypes.JSONSlice[string]{}
	}
	return nil
}
