package store

import (
	"context"
	"strings"
	"time"

	"certverify-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *GormStore) CreateIssuer(ctx context.Context, i *domain.Issuer) error {
	i.Code = strings.ToUpper(strings.TrimSpace(i.Code))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Issuer{}).Where("code = ?", i.Code).Count(&n).Error; err != nil {
			return unavailable(err)
		}
		if n > 0 {
			return domain.ErrDuplicateIssuerCode
		}
		if err := tx.Create(i).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	return err
}

func (s *GormStore) CreateVerifier(ctx context.Context, v *domain.Verifier) error {
	if err := s.DB.WithContext(ctx).Create(v).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *GormStore) FindIssuerByID(ctx context.Context, id uuid.UUID) (*domain.Issuer, error) {
	var i domain.Issuer
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&i).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &i, nil
}

func (s *GormStore) FindIssuerByKeyID(ctx context.Context, keyID string) (*domain.Issuer, error) {
	var i domain.Issuer
	if err := s.DB.WithContext(ctx).Where("api_key_id = ?", keyID).First(&i).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &i, nil
}

func (s *GormStore) FindVerifierByKeyID(ctx context.Context, keyID string) (*domain.Verifier, error) {
	var v domain.Verifier
	if err := s.DB.WithContext(ctx).Where("api_key_id = ?", keyID).First(&v).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &v, nil
}

func (s *GormStore) IncrementIssuerCertificates(ctx context.Context, id uuid.UUID, delta int64) error {
	res := s.DB.WithContext(ctx).Model(&domain.Issuer{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"certificates_count": gorm.Expr("certificates_count + ?", delta),
		"updated_at":         time.Now().UTC(),
	})
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementVerifierUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&domain.Verifier{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"verification_count":   gorm.Expr("verification_count + ?", 1),
		"last_verification_at": at,
	})
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
