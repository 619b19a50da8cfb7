package verification

import (
	"encoding/json"
	"fmt"

	certsvc "certverify-backend/internal/application/certificates"
	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/application/verification"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/middleware"
	"certverify-backend/internal/pkg/response"
	"certverify-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Engine   *verification.Engine
	Reporter *verification.Reporter
}

type recordBody struct {
	StudentName       string       `json:"student_name"`
	RollNumber        string       `json:"roll_number"`
	Course            string       `json:"course"`
	GraduationYear    certsvc.Year `json:"graduation_year"`
	Marks             string       `json:"marks"`
	CertificateNumber string       `json:"certificate_number"`
	IssueDate         string       `json:"issue_date"`
}

type verifyBody struct {
	Method            domain.Method `json:"method"`
	RollNumber        string        `json:"roll_number"`
	StudentName       string        `json:"student_name"`
	CertificateNumber string        `json:"certificate_number"`
	Course            string        `json:"course"`
	FingerprintHash   string        `json:"fingerprint_hash"`
	Record            *recordBody   `json:"record"`
}

func (b verifyBody) query() verification.Query {
	q := verification.Query{
		Method:            b.Method,
		RollNumber:        b.RollNumber,
		StudentName:       b.StudentName,
		CertificateNumber: b.CertificateNumber,
		Course:            b.Course,
		SuppliedHash:      b.FingerprintHash,
	}
	if r := b.Record; r != nil {
		q.Record = &fingerprint.Record{
			StudentName:       r.StudentName,
			RollNumber:        r.RollNumber,
			Course:            r.Course,
			GraduationYear:    string(r.GraduationYear),
			Marks:             r.Marks,
			CertificateNumber: r.CertificateNumber,
			IssueDate:         r.IssueDate,
		}
		if q.RollNumber == "" {
			q.RollNumber = r.RollNumber
		}
		if q.StudentName == "" {
			q.StudentName = r.StudentName
		}
	}
	return q
}

// Verify POST /api/v1/verify. A verifier key is optional; anonymous attempts are still audited.
func (h *Handlers) Verify(c *fiber.Ctx) error {
	var body verifyBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err)
	}
	q := body.query()
	if p := middleware.GetPrincipal(c); p != nil {
		q.Verifier = p.Verifier
	}
	q.IPAddress = c.IP()
	q.UserAgent = c.Get(fiber.HeaderUserAgent)

	res, err := h.Engine.Verify(c.UserContext(), q)
	if err != nil {
		return err
	}
	return response.Success(c, "Verification completed", res, fiber.Map{"trace_id": middleware.GetTraceID(c)})
}

// Stats GET /api/v1/verify/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	stats, err := h.Reporter.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "Verification statistics", stats, nil)
}

// History GET /api/v1/verify/history?outcome=&page=&limit=
func (h *Handlers) History(c *fiber.Ctx) error {
	p := middleware.GetPrincipal(c)
	if p == nil || p.Verifier == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	req, err := validation.PageFromQuery(c)
	if err != nil {
		return err
	}
	page, err := h.Reporter.History(c.UserContext(), p.Verifier.ID, domain.Outcome(c.Query("outcome")), req)
	if err != nil {
		return err
	}
	return response.Paginated(c, "Verification history", page, req.PageSize)
}
