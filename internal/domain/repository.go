package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest is a 1-based page selection.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request into the accepted range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one page of results plus position metadata.
type Page[T any] struct {
	Items       []T   `json:"items"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
}

// NewPage builds page metadata; TotalPages is ceil(total / pageSize).
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.PageSize > 0 {
		pages = int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	return Page[T]{Items: items, CurrentPage: req.Page, TotalPages: pages, TotalCount: total}
}

// CertificateRepository is the certificate entity store. Lookups return ErrNotFound when
// absent; infrastructure failures are wrapped in ErrStoreUnavailable.
type CertificateRepository interface {
	Create(ctx context.Context, c *Certificate) error
	FindByID(ctx context.Context, id uuid.UUID) (*Certificate, error)
	FindByCertificateNumber(ctx context.Context, number string) (*Certificate, error)
	FindByFingerprint(ctx context.Context, hash string) (*Certificate, error)
	FindByRollNumber(ctx context.Context, rollNumber string) ([]Certificate, error)
	ListByIssuer(ctx context.Context, issuerID uuid.UUID, req PageRequest) (Page[Certificate], error)
	IncrementVerificationCount(ctx context.Context, id uuid.UUID, at time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status CertificateStatus) error
	TransitionPublication(ctx context.Context, t PublicationTransition) (bool, error)
	CountUnpublished(ctx context.Context, issuerID uuid.UUID) (int64, error)
	ListUnpublished(ctx context.Context, issuerID uuid.UUID) ([]Certificate, error)
	CountCertificates(ctx context.Context) (total int64, active int64, err error)
}

// AuditSink appends verification log entries. Entries are never updated or deleted.
type AuditSink interface {
	Append(ctx context.Context, entry *VerificationLog) error
}

// AuditFilter narrows audit queries; zero values match everything.
type AuditFilter struct {
	VerifierID    *uuid.UUID
	CertificateID *uuid.UUID
	Outcome       Outcome
}

type AuditReader interface {
	List(ctx context.Context, f AuditFilter, req PageRequest) (Page[VerificationLog], error)
	CountByOutcome(ctx context.Context) (map[Outcome]int64, error)
}

// PrincipalRepository stores issuers and verifiers together with their API key hashes.
type PrincipalRepository interface {
	CreateIssuer(ctx context.Context, i *Issuer) error
	CreateVerifier(ctx context.Context, v *Verifier) error
	FindIssuerByID(ctx context.Context, id uuid.UUID) (*Issuer, error)
	FindIssuerByKeyID(ctx context.Context, keyID string) (*Issuer, error)
	FindVerifierByKeyID(ctx context.Context, keyID string) (*Verifier, error)
	IncrementIssuerCertificates(ctx context.Context, id uuid.UUID, delta int64) error
	IncrementVerifierUsage(ctx context.Context, id uuid.UUID, at time.Time) error
}

// LedgerEntry is one fingerprint anchored by an external publish.
type LedgerEntry struct {
	FingerprintHash   string `json:"fingerprint_hash"`
	CertificateNumber string `json:"certificate_number"`
}

// LedgerReceipt is the external ledger's success report.
type LedgerReceipt struct {
	TxRef       string `json:"tx_ref"`
	BlockNumber uint64 `json:"block_number"`
}

// LedgerPublisher submits a list of entries to an append-only ledger in one transaction.
// An error means nothing was applied.
type LedgerPublisher interface {
	Publish(ctx context.Context, entries []LedgerEntry) (*LedgerReceipt, error)
}
