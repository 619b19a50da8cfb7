// Package store holds the persistence adapters behind the domain repositories: a GORM
// implementation for Postgres/SQLite and a mutex-guarded in-memory one.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certverify-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore implements the certificate, audit and principal repositories on one *gorm.DB.
type GormStore struct {
	DB *gorm.DB
}

var (
	_ domain.CertificateRepository = (*GormStore)(nil)
	_ domain.AuditSink             = (*GormStore)(nil)
	_ domain.AuditReader           = (*GormStore)(nil)
	_ domain.PrincipalRepository   = (*GormStore)(nil)
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func lookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return unavailable(err)
}

func (s *GormStore) Create(ctx context.Context, c *domain.Certificate) error {
	c.PrepareForInsert(time.Now().UTC())
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkDuplicate(tx, c); err != nil {
			return err
		}
		if err := tx.Create(c).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrStoreUnavailable) {
		// A concurrent insert can pass the pre-check and trip the unique index instead.
		if dup := checkDuplicate(s.DB.WithContext(ctx), c); isDuplicate(dup) {
			return dup
		}
	}
	return err
}

// checkDuplicate returns a duplicate sentinel when either unique key of c is taken.
func checkDuplicate(tx *gorm.DB, c *domain.Certificate) error {
	var n int64
	if err := tx.Model(&domain.Certificate{}).Where("certificate_number = ?", c.CertificateNumber).Count(&n).Error; err != nil {
		return unavailable(err)
	}
	if n > 0 {
		return domain.ErrDuplicateCertificateNumber
	}
	if err := tx.Model(&domain.Certificate{}).Where("fingerprint_hash = ?", c.FingerprintHash).Count(&n).Error; err != nil {
		return unavailable(err)
	}
	if n > 0 {
		return domain.ErrDuplicateFingerprint
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, domain.ErrDuplicateCertificateNumber) || errors.Is(err, domain.ErrDuplicateFingerprint)
}

func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	var c domain.Certificate
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &c, nil
}

func (s *GormStore) FindByCertificateNumber(ctx context.Context, number string) (*domain.Certificate, error) {
	var c domain.Certificate
	if err := s.DB.WithContext(ctx).Where("certificate_number = ?", strings.TrimSpace(number)).First(&c).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &c, nil
}

func (s *GormStore) FindByFingerprint(ctx context.Context, hash string) (*domain.Certificate, error) {
	var c domain.Certificate
	if err := s.DB.WithContext(ctx).Where("fingerprint_hash = ?", strings.ToLower(strings.TrimSpace(hash))).First(&c).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &c, nil
}

func (s *GormStore) FindByRollNumber(ctx context.Context, rollNumber string) ([]domain.Certificate, error) {
	var out []domain.Certificate
	err := s.DB.WithContext(ctx).
		Where("roll_number = ?", strings.ToUpper(strings.TrimSpace(rollNumber))).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *GormStore) ListByIssuer(ctx context.Context, issuerID uuid.UUID, req domain.PageRequest) (domain.Page[domain.Certificate], error) {
	req = req.Normalize()
	scope := func() *gorm.DB {
		return s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("issuer_id = ?", issuerID)
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return domain.Page[domain.Certificate]{}, unavailable(err)
	}
	var items []domain.Certificate
	err := scope().Order("created_at DESC, id DESC").Offset(req.Offset()).Limit(req.PageSize).Find(&items).Error
	if err != nil {
		return domain.Page[domain.Certificate]{}, unavailable(err)
	}
	return domain.NewPage(items, req, total), nil
}

func (s *GormStore) IncrementVerificationCount(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"verification_count": gorm.Expr("verification_count + ?", 1),
		"last_verified_at":   at,
	})
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *GormStore) SetStatus(ctx context.Context, id uuid.UUID, status domain.CertificateStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	res := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionPublication is a single conditional UPDATE; it reports false when no row matched.
func (s *GormStore) TransitionPublication(ctx context.Context, t domain.PublicationTransition) (bool, error) {
	from := t.To.Predecessors()
	if len(from) == 0 {
		return false, nil
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]interface{}{
		"publication_state": t.To,
		"updated_at":        at,
	}
	if t.To == domain.PublicationPublished {
		updates["external_tx_ref"] = t.ExternalTxRef
		updates["ledger_block"] = t.LedgerBlock
		updates["published_at"] = at
	}
	res := s.DB.WithContext(ctx).Model(&domain.Certificate{}).
		Where("id = ? AND issuer_id = ? AND fingerprint_hash = ? AND publication_state IN ?",
			t.CertificateID, t.IssuerID, t.ExpectedHash, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CountUnpublished(ctx context.Context, issuerID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&domain.Certificate{}).
		Where("issuer_id = ? AND publication_state <> ?", issuerID, domain.PublicationPublished).
		Count(&n).Error
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *GormStore) ListUnpublished(ctx context.Context, issuerID uuid.UUID) ([]domain.Certificate, error) {
	var out []domain.Certificate
	err := s.DB.WithContext(ctx).
		Where("issuer_id = ? AND publication_state <> ?", issuerID, domain.PublicationPublished).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *GormStore) CountCertificates(ctx context.Context) (int64, int64, error) {
	var total, active int64
	if err := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Count(&total).Error; err != nil {
		return 0, 0, unavailable(err)
	}
	if err := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("status = ?", domain.StatusActive).Count(&active).Error; err != nil {
		return 0, 0, unavailable(err)
	}
	return total, active, nil
}
