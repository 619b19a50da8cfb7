package certificates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Ingestion sources recorded on each certificate.
const (
	SourceAPI  = "api"
	SourceBulk = "bulk"
	SourceCSV  = "csv"
	SourceCLI  = "cli"
)

const maxBulkErrorMessages = 10

// Year accepts a graduation year given either as a JSON number or a string.
type Year string

func (y *Year) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*y = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		*y = Year(unquoted)
		return nil
	}
	*y = Year(s)
	return nil
}

// Input is one certificate as submitted by an issuer. Issuer identity comes from the
// authenticated principal, never from the body.
type Input struct {
	StudentName       string `json:"student_name"`
	RollNumber        string `json:"roll_number"`
	Course            string `json:"course"`
	GraduationYear    Year   `json:"graduation_year"`
	Marks             string `json:"marks"`
	CertificateNumber string `json:"certificate_number"`
	IssueDate         string `json:"issue_date"`
}

// BulkSummary reports a multi-row ingestion. At most ten error messages are kept.
type BulkSummary struct {
	Total         int          `json:"total"`
	Successful    int          `json:"successful"`
	Errors        int          `json:"errors"`
	ErrorMessages []string     `json:"error_messages"`
	Created       []CreatedRef `json:"created"`
}

type CreatedRef struct {
	ID                uuid.UUID `json:"id"`
	CertificateNumber string    `json:"certificate_number"`
	FingerprintHash   string    `json:"fingerprint_hash"`
}

type Service struct {
	Certificates domain.CertificateRepository
	Principals   domain.PrincipalRepository
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Build validates in and derives the stored certificate, fingerprint included, without
// persisting anything.
func (s *Service) Build(issuer *domain.Issuer, in Input, source string) (*domain.Certificate, error) {
	if issuer == nil {
		return nil, fmt.Errorf("%w: issuer is required", domain.ErrInvalidCertificate)
	}
	var missing []string
	if strings.TrimSpace(in.StudentName) == "" {
		missing = append(missing, "student_name")
	}
	if strings.TrimSpace(in.RollNumber) == "" {
		missing = append(missing, "roll_number")
	}
	if strings.TrimSpace(in.Course) == "" {
		missing = append(missing, "course")
	}
	if strings.TrimSpace(in.Marks) == "" {
		missing = append(missing, "marks")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidCertificate, strings.Join(missing, ", "))
	}
	year := fingerprint.CoerceYear(string(in.GraduationYear))
	if year <= 0 {
		return nil, fmt.Errorf("%w: graduation_year must be a positive whole number", domain.ErrInvalidCertificate)
	}

	now := s.now()
	issueDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if strings.TrimSpace(in.IssueDate) != "" {
		parsed, ok := fingerprint.ParseIssueDate(in.IssueDate)
		if !ok {
			return nil, fmt.Errorf("%w: issue_date %q is not a date", domain.ErrInvalidCertificate, in.IssueDate)
		}
		issueDate = parsed
	}

	number := strings.TrimSpace(in.CertificateNumber)
	if number == "" {
		number = generateNumber(now)
	}

	record := fingerprint.Record{
		StudentName:       in.StudentName,
		RollNumber:        in.RollNumber,
		Course:            in.Course,
		GraduationYear:    strconv.Itoa(year),
		Marks:             in.Marks,
		CertificateNumber: number,
		IssueDate:         issueDate.Format("2006-01-02"),
		IssuerID:          issuer.ID.String(),
		IssuerName:        issuer.Name,
		IssuerCode:        issuer.Code,
	}
	cf := fingerprint.Canonicalize(record)
	return &domain.Certificate{
		CertificateNumber: cf.CertificateNumber,
		FingerprintHash:   fingerprint.Fingerprint(cf),
		StudentName:       cf.StudentName,
		RollNumber:        cf.RollNumber,
		Course:            cf.Course,
		GraduationYear:    cf.GraduationYear,
		Marks:             cf.Marks,
		IssueDate:         &issueDate,
		IssuerID:          issuer.ID,
		IssuerName:        cf.UniversityName,
		IssuerCode:        cf.UniversityCode,
		Source:            source,
	}, nil
}

func generateNumber(now time.Time) string {
	return fmt.Sprintf("CERT-%s-%s", now.Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]))
}

// Create stores one certificate for issuer.
func (s *Service) Create(ctx context.Context, issuer *domain.Issuer, in Input, source string) (*domain.Certificate, error) {
	c, err := s.Build(issuer, in, source)
	if err != nil {
		return nil, err
	}
	if err := s.Certificates.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Metrics.CertificateCreated(source)
	s.bumpIssuer(ctx, issuer.ID, 1)
	return c, nil
}

// CreateMany stores each input independently; one bad row never aborts the rest.
func (s *Service) CreateMany(ctx context.Context, issuer *domain.Issuer, inputs []Input, source string) BulkSummary {
	summary := BulkSummary{Total: len(inputs), ErrorMessages: []string{}, Created: []CreatedRef{}}
	for i, in := range inputs {
		c, err := s.Build(issuer, in, source)
		if err == nil {
			err = s.Certificates.Create(ctx, c)
		}
		if err != nil {
			summary.Errors++
			if len(summary.ErrorMessages) < maxBulkErrorMessages {
				summary.ErrorMessages = append(summary.ErrorMessages, rowError(i, in, err))
			}
			continue
		}
		summary.Successful++
		s.Metrics.CertificateCreated(source)
		summary.Created = append(summary.Created, CreatedRef{ID: c.ID, CertificateNumber: c.CertificateNumber, FingerprintHash: c.FingerprintHash})
	}
	if summary.Successful > 0 && issuer != nil {
		s.bumpIssuer(ctx, issuer.ID, int64(summary.Successful))
	}
	return summary
}

func rowError(i int, in Input, err error) string {
	number := strings.TrimSpace(in.CertificateNumber)
	switch {
	case errors.Is(err, domain.ErrDuplicateCertificateNumber):
		return fmt.Sprintf("Certificate %s already exists", number)
	case errors.Is(err, domain.ErrDuplicateFingerprint):
		return fmt.Sprintf("Row %d: certificate with identical content already exists", i+1)
	case number != "":
		return fmt.Sprintf("Error processing %s: %v", number, err)
	}
	return fmt.Sprintf("Row %d: %v", i+1, err)
}

func (s *Service) bumpIssuer(ctx context.Context, issuerID uuid.UUID, delta int64) {
	if s.Principals == nil {
		return
	}
	if err := s.Principals.IncrementIssuerCertificates(ctx, issuerID, delta); err != nil {
		log.Warn().Err(err).Str("issuer_id", issuerID.String()).Int64("delta", delta).Msg("issuer certificate count not updated")
	}
}

func (s *Service) List(ctx context.Context, issuerID uuid.UUID, req domain.PageRequest) (domain.Page[domain.Certificate], error) {
	return s.Certificates.ListByIssuer(ctx, issuerID, req)
}

// SearchByRoll returns every certificate carrying rollNumber, or ErrNotFound.
func (s *Service) SearchByRoll(ctx context.Context, rollNumber string) ([]domain.Certificate, error) {
	roll := fingerprint.NormalizeRollNumber(rollNumber)
	if roll == "" {
		return nil, fmt.Errorf("%w: roll number is required", domain.ErrInvalidQuery)
	}
	found, err := s.Certificates.FindByRollNumber(ctx, roll)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func (s *Service) FindByFingerprint(ctx context.Context, hash string) (*domain.Certificate, error) {
	normalized, ok := fingerprint.Normalize(hash)
	if !ok {
		return nil, fmt.Errorf("%w: malformed fingerprint", domain.ErrInvalidQuery)
	}
	return s.Certificates.FindByFingerprint(ctx, normalized)
}

// SetStatus revokes, suspends or reactivates one of issuer's certificates. Certificates of
// other issuers are reported as not found.
func (s *Service) SetStatus(ctx context.Context, issuerID, certificateID uuid.UUID, status domain.CertificateStatus) (*domain.Certificate, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	c, err := s.Certificates.FindByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if c.IssuerID != issuerID {
		return nil, domain.ErrNotFound
	}
	if err := s.Certificates.SetStatus(ctx, certificateID, status); err != nil {
		return nil, err
	}
	c.Status = status
	log.Info().Str("certificate_id", certificateID.String()).Str("status", string(status)).Msg("certificate status changed")
	return c, nil
}
