package store

import (
	"context"
	"time"

	"certverify-backend/internal/domain"

	"gorm.io/gorm"
)

// Append inserts one audit entry. Entries are never updated afterwards.
func (s *GormStore) Append(ctx context.Context, entry *domain.VerificationLog) error {
	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = time.Now().UTC()
	}
	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, f domain.AuditFilter, req domain.PageRequest) (domain.Page[domain.VerificationLog], error) {
	req = req.Normalize()
	scope := func() *gorm.DB {
		q := s.DB.WithContext(ctx).Model(&domain.VerificationLog{})
		if f.VerifierID != nil {
			q = q.Where("verifier_id = ?", *f.VerifierID)
		}
		if f.CertificateID != nil {
			q = q.Where("certificate_id = ?", *f.CertificateID)
		}
		if f.Outcome != "" {
			q = q.Where("outcome = ?", f.Outcome)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return domain.Page[domain.VerificationLog]{}, unavailable(err)
	}
	var items []domain.VerificationLog
	if err := scope().Order("verified_at DESC, id DESC").Offset(req.Offset()).Limit(req.PageSize).Find(&items).Error; err != nil {
		return domain.Page[domain.VerificationLog]{}, unavailable(err)
	}
	return domain.NewPage(items, req, total), nil
}

type outcomeCount struct {
	Outcome domain.Outcome
	Total   int64
}

func (s *GormStore) CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error) {
	var rows []outcomeCount
	err := s.DB.WithContext(ctx).Model(&domain.VerificationLog{}).
		Select("outcome, COUNT(*) AS total").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	out := make(map[domain.Outcome]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Total
	}
	return out, nil
}
