package fingerprint

import (
	"math"
	"strconv"
	"strings"
	"time"

	"certverify-backend/internal/domain"
)

const dateLayout = "2006-01-02"

// issueDateLayouts are tried in order; the first that parses wins.
var issueDateLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// Record is the raw, caller-supplied certificate input before normalization.
type Record struct {
	StudentName       string `json:"student_name"`
	RollNumber        string `json:"roll_number"`
	Course            string `json:"course"`
	GraduationYear    string `json:"graduation_year"`
	Marks             string `json:"marks"`
	CertificateNumber string `json:"certificate_number"`
	IssueDate         string `json:"issue_date"`
	IssuerID          string `json:"issuer_id"`
	IssuerName        string `json:"issuer_name"`
	IssuerCode        string `json:"issuer_code"`
}

// CanonicalForm is the normalized hashing input. Field order is the serialization order.
type CanonicalForm struct {
	StudentName       string `json:"studentName"`
	RollNumber        string `json:"rollNumber"`
	Course            string `json:"course"`
	GraduationYear    int    `json:"graduationYear"`
	Marks             string `json:"marks"`
	CertificateNumber string `json:"certificateNumber"`
	UniversityID      string `json:"universityID"`
	UniversityName    string `json:"universityName"`
	UniversityCode    string `json:"universityCode"`
	IssueDate         string `json:"issueDate"`
}

// Canonicalize normalizes r. Absent or malformed fields degrade to "" or 0.
func Canonicalize(r Record) CanonicalForm {
	issueDate := ""
	if t, ok := ParseIssueDate(r.IssueDate); ok {
		issueDate = t.Format(dateLayout)
	}
	return CanonicalForm{
		StudentName:       strings.TrimSpace(r.StudentName),
		RollNumber:        NormalizeRollNumber(r.RollNumber),
		Course:            strings.TrimSpace(r.Course),
		GraduationYear:    CoerceYear(r.GraduationYear),
		Marks:             strings.TrimSpace(r.Marks),
		CertificateNumber: strings.TrimSpace(r.CertificateNumber),
		UniversityID:      strings.TrimSpace(r.IssuerID),
		UniversityName:    strings.TrimSpace(r.IssuerName),
		UniversityCode:    strings.TrimSpace(r.IssuerCode),
		IssueDate:         issueDate,
	}
}

// NormalizeRollNumber trims and upper-cases a roll number.
func NormalizeRollNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CoerceYear parses a graduation year. Whole-number decimals ("2023.0") are accepted;
// anything else yields 0.
func CoerceYear(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// ParseIssueDate parses raw into a UTC calendar date (time component dropped).
func ParseIssueDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range issueDateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// RecordFromCertificate rebuilds the hashing input of a stored certificate.
func RecordFromCertificate(c *domain.Certificate) Record {
	issueDate := ""
	if c.IssueDate != nil {
		issueDate = c.IssueDate.UTC().Format(dateLayout)
	}
	return Record{
		StudentName:       c.StudentName,
		RollNumber:        c.RollNumber,
		Course:            c.Course,
		GraduationYear:    strconv.Itoa(c.GraduationYear),
		Marks:             c.Marks,
		CertificateNumber: c.CertificateNumber,
		IssueDate:         issueDate,
		IssuerID:          c.IssuerID.String(),
		IssuerName:        c.IssuerName,
		IssuerCode:        c.IssuerCode,
	}
}
