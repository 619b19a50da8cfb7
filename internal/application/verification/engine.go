// Package verification classifies a verification query against the certificate store and
// records one audit entry per attempt.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ConfidenceHashMatch = 95
	ConfidenceMismatch  = 60
	ConfidenceManual    = 70
)

// Query is one verification request. Record, when present, carries the full descriptive
// fields so the fingerprint can be recomputed against the candidate's issuer.
type Query struct {
	Method            domain.Method
	RollNumber        string
	StudentName       string
	CertificateNumber string
	Course            string
	SuppliedHash      string
	Record            *fingerprint.Record

	Verifier  *domain.Verifier
	IPAddress string
	UserAgent string

	hashWellFormed bool
}

type Result struct {
	Outcome             domain.Outcome      `json:"outcome"`
	Method              domain.Method       `json:"method"`
	Confidence          int                 `json:"confidence"`
	Flags               []string            `json:"flags"`
	Certificate         *domain.Certificate `json:"certificate,omitempty"`
	ComparedFingerprint string              `json:"compared_fingerprint,omitempty"`
	AuditLogID          *uuid.UUID          `json:"audit_log_id"`
	VerifiedAt          time.Time           `json:"verified_at"`
}

type Engine struct {
	Certificates domain.CertificateRepository
	Audit        domain.AuditSink
	Principals   domain.PrincipalRepository
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Validate resolves the default method and rejects queries that lack the identifier their
// method needs. It never touches the store.
func (q *Query) Validate() error {
	q.RollNumber = fingerprint.NormalizeRollNumber(q.RollNumber)
	q.StudentName = strings.TrimSpace(q.StudentName)
	q.SuppliedHash = strings.TrimSpace(q.SuppliedHash)

	if q.Method == "" {
		if q.SuppliedHash != "" && q.RollNumber == "" {
			q.Method = domain.MethodHashMatch
		} else {
			q.Method = domain.MethodManual
		}
	}
	if !q.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", domain.ErrInvalidQuery, q.Method)
	}
	if normalized, ok := fingerprint.Normalize(q.SuppliedHash); ok {
		q.SuppliedHash = normalized
		q.hashWellFormed = true
	}
	switch q.Method {
	case domain.MethodHashMatch:
		if !q.hashWellFormed {
			return fmt.Errorf("%w: a well-formed fingerprint is required", domain.ErrInvalidQuery)
		}
	default:
		if q.RollNumber == "" {
			return fmt.Errorf("%w: roll number is required", domain.ErrInvalidQuery)
		}
	}
	return nil
}

// Verify runs one verification attempt. Invalid queries fail before any lookup or write;
// store failures surface as ErrStoreUnavailable. Audit failures never fail the call.
func (e *Engine) Verify(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	candidate, err := e.lookup(ctx, &q)
	if err != nil {
		return nil, err
	}

	res := classify(&q, candidate)
	res.VerifiedAt = e.now()

	if candidate != nil {
		if err := e.recordMatch(ctx, &q, candidate, res.VerifiedAt); err != nil {
			return nil, err
		}
		candidate.VerificationCount++
		candidate.LastVerifiedAt = &res.VerifiedAt
	}

	res.AuditLogID = e.appendAudit(ctx, &q, res)
	e.Metrics.Verification(string(res.Outcome), string(res.Method))
	return res, nil
}

// lookup prefers an exact fingerprint match and falls back to roll number plus a folded
// substring match on the student name.
func (e *Engine) lookup(ctx context.Context, q *Query) (*domain.Certificate, error) {
	if q.hashWellFormed {
		c, err := e.Certificates.FindByFingerprint(ctx, q.SuppliedHash)
		switch {
		case err == nil:
			return c, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, storeErr(err)
		}
	}
	if q.RollNumber == "" {
		return nil, nil
	}
	found, err := e.Certificates.FindByRollNumber(ctx, q.RollNumber)
	if err != nil {
		return nil, storeErr(err)
	}
	want := foldName(q.StudentName)
	for i := range found {
		if strings.Contains(foldName(found[i].StudentName), want) {
			return &found[i], nil
		}
	}
	return nil, nil
}

func storeErr(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

// foldName lower-cases and collapses internal whitespace.
func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// comparedFingerprint is the caller-side fingerprint to test against c, or "" when the
// query carries nothing to compare. A malformed supplied hash is still compared and so
// never matches.
func comparedFingerprint(q *Query, c *domain.Certificate) string {
	if q.SuppliedHash != "" {
		return q.SuppliedHash
	}
	if q.Record == nil {
		return ""
	}
	r := *q.Record
	r.IssuerID = c.IssuerID.String()
	r.IssuerName = c.IssuerName
	r.IssuerCode = c.IssuerCode
	return fingerprint.Compute(r)
}

func classify(q *Query, c *domain.Certificate) *Result {
	res := &Result{Method: q.Method, Flags: []string{}}
	if c == nil {
		res.Outcome = domain.OutcomeNotFound
		return res
	}
	res.Certificate = c
	res.ComparedFingerprint = comparedFingerprint(q, c)

	switch {
	case res.ComparedFingerprint != "" && fingerprint.Equal(res.ComparedFingerprint, c.FingerprintHash):
		res.Outcome = domain.OutcomeVerified
		res.Confidence = ConfidenceHashMatch
	case res.ComparedFingerprint != "":
		res.Outcome = domain.OutcomeSuspicious
		res.Confidence = ConfidenceMismatch
		res.Flags = append(res.Flags, domain.FlagDataMismatch)
	case q.Method == domain.MethodOCR:
		res.Outcome = domain.OutcomeVerified
		res.Confidence = ExtractionConfidence(q)
	default:
		res.Outcome = domain.OutcomeVerified
		res.Confidence = ConfidenceManual
	}

	switch c.Status {
	case domain.StatusRevoked:
		res.Flags = append(res.Flags, domain.FlagStatusRevoked)
	case domain.StatusSuspended:
		res.Flags = append(res.Flags, domain.FlagStatusSuspended)
	}
	return res
}

func (e *Engine) recordMatch(ctx context.Context, q *Query, c *domain.Certificate, at time.Time) error {
	if err := e.Certificates.IncrementVerificationCount(ctx, c.ID, at); err != nil {
		log.Error().Err(err).Str("certificate_id", c.ID.String()).Msg("verification count not updated")
		return storeErr(err)
	}
	if q.Verifier != nil && e.Principals != nil {
		if err := e.Principals.IncrementVerifierUsage(ctx, q.Verifier.ID, at); err != nil {
			log.Error().Err(err).Str("verifier_id", q.Verifier.ID.String()).Msg("verifier usage not updated")
			return storeErr(err)
		}
	}
	return nil
}

func (e *Engine) appendAudit(ctx context.Context, q *Query, res *Result) *uuid.UUID {
	entry := &domain.VerificationLog{
		QueriedStudentName: q.StudentName,
		QueriedRollNumber:  q.RollNumber,
		Outcome:            res.Outcome,
		Method:             res.Method,
		Confidence:         res.Confidence,
		Flags:              append([]string{}, res.Flags...),
		IPAddress:          q.IPAddress,
		UserAgent:          q.UserAgent,
		VerifiedAt:         res.VerifiedAt,
	}
	if q.Verifier != nil {
		id := q.Verifier.ID
		entry.VerifierID = &id
		entry.VerifierName = q.Verifier.Name
	}
	if c := res.Certificate; c != nil {
		certID, issuerID, hash := c.ID, c.IssuerID, c.FingerprintHash
		entry.CertificateID = &certID
		entry.IssuerID = &issuerID
		entry.IssuerName = c.IssuerName
		entry.FingerprintHash = &hash
		entry.ExternalTxRef = c.ExternalTxRef
	} else if q.hashWellFormed {
		hash := q.SuppliedHash
		entry.FingerprintHash = &hash
	}

	if e.Audit == nil {
		return nil
	}
	if err := e.Audit.Append(ctx, entry); err != nil {
		e.Metrics.AuditWriteFailed()
		log.Error().Err(err).
			Str("outcome", string(res.Outcome)).
			Str("roll_number", q.RollNumber).
			Msg("verification audit entry not written")
		return nil
	}
	id := entry.ID
	return &id
}
