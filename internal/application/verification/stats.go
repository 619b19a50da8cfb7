package verification

import (
	"context"
	"math"

	"certverify-backend/internal/domain"

	"github.com/google/uuid"
)

type Stats struct {
	TotalVerifications int64   `json:"total_verifications"`
	VerifiedCount      int64   `json:"verified_count"`
	SuspiciousCount    int64   `json:"suspicious_count"`
	NotFoundCount      int64   `json:"not_found_count"`
	TotalCertificates  int64   `json:"total_certificates"`
	ActiveCertificates int64   `json:"active_certificates"`
	VerificationRate   float64 `json:"verification_rate"`
}

// Reporter answers read-only questions about past verifications.
type Reporter struct {
	Certificates domain.CertificateRepository
	Audit        domain.AuditReader
}

func (r *Reporter) Stats(ctx context.Context) (*Stats, error) {
	counts, err := r.Audit.CountByOutcome(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	total, active, err := r.Certificates.CountCertificates(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	s := &Stats{
		VerifiedCount:      counts[domain.OutcomeVerified],
		SuspiciousCount:    counts[domain.OutcomeSuspicious],
		NotFoundCount:      counts[domain.OutcomeNotFound],
		TotalCertificates:  total,
		ActiveCertificates: active,
	}
	for _, n := range counts {
		s.TotalVerifications += n
	}
	if s.TotalVerifications > 0 {
		rate := float64(s.VerifiedCount) / float64(s.TotalVerifications) * 100
		s.VerificationRate = math.Round(rate*100) / 100
	}
	return s, nil
}

// History lists a verifier's own attempts, newest first, optionally narrowed to one outcome.
func (r *Reporter) History(ctx context.Context, verifierID uuid.UUID, outcome domain.Outcome, req domain.PageRequest) (domain.Page[domain.VerificationLog], error) {
	if outcome != "" && !outcome.Valid() {
		return domain.Page[domain.VerificationLog]{}, domain.ErrInvalidQuery
	}
	return r.Audit.List(ctx, domain.AuditFilter{VerifierID: &verifierID, Outcome: outcome}, req)
}
