package certificates

import (
	"encoding/json"
	"fmt"
	"strings"

	certsvc "certverify-backend/internal/application/certificates"
	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/middleware"
	"certverify-backend/internal/pkg/response"
	"certverify-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

const maxUploadBytes = 5 << 20

// Handlers bundles certificate handlers with dependencies.
type Handlers struct {
	Service *certsvc.Service
}

func issuerOf(c *fiber.Ctx) (*domain.Issuer, error) {
	p := middleware.GetPrincipal(c)
	if p == nil || p.Issuer == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	return p.Issuer, nil
}

func badBody(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidCertificate, err)
}

// Create POST /api/v1/certificates
func (h *Handlers) Create(c *fiber.Ctx) error {
	issuer, err := issuerOf(c)
	if err != nil {
		return err
	}
	var in certsvc.Input
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return badBody(err)
	}
	cert, err := h.Service.Create(c.UserContext(), issuer, in, certsvc.SourceAPI)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Certificate created successfully", cert, nil)
}

type bulkBody struct {
	Certificates []certsvc.Input `json:"certificates"`
}

// Bulk POST /api/v1/certificates/bulk accepts {"certificates": [...]} or a bare array.
func (h *Handlers) Bulk(c *fiber.Ctx) error {
	issuer, err := issuerOf(c)
	if err != nil {
		return err
	}
	var inputs []certsvc.Input
	raw := strings.TrimSpace(string(c.Body()))
	if strings.HasPrefix(raw, "[") {
		err = json.Unmarshal([]byte(raw), &inputs)
	} else {
		var body bulkBody
		err = json.Unmarshal([]byte(raw), &body)
		inputs = body.Certificates
	}
	if err != nil {
		return badBody(err)
	}
	if len(inputs) == 0 {
		return badBody(fmt.Errorf("no certificates supplied"))
	}
	summary := h.Service.CreateMany(c.UserContext(), issuer, inputs, certsvc.SourceBulk)
	return response.Success(c, "Bulk ingestion completed", summary, nil)
}

// Upload POST /api/v1/certificates/upload (multipart field "file", CSV)
func (h *Handlers) Upload(c *fiber.Ctx) error {
	issuer, err := issuerOf(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badBody(fmt.Errorf("a CSV file is required in field \"file\""))
	}
	if fh.Size > maxUploadBytes {
		return badBody(fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	inputs, err := certsvc.ParseCSV(f)
	if err != nil {
		return badBody(err)
	}
	summary := h.Service.CreateMany(c.UserContext(), issuer, inputs, certsvc.SourceCSV)
	return response.Success(c, "CSV processed", summary, fiber.Map{"filename": fh.Filename})
}

// List GET /api/v1/certificates?page=&limit=
func (h *Handlers) List(c *fiber.Ctx) error {
	issuer, err := issuerOf(c)
	if err != nil {
		return err
	}
	req, err := validation.PageFromQuery(c)
	if err != nil {
		return err
	}
	page, err := h.Service.List(c.UserContext(), issuer.ID, req)
	if err != nil {
		return err
	}
	return response.Paginated(c, "Certificates fetched successfully", page, req.PageSize)
}

// SetStatus PATCH /api/v1/certificates/:id/status
func (h *Handlers) SetStatus(c *fiber.Ctx) error {
	issuer, err := issuerOf(c)
	if err != nil {
		return err
	}
	id, err := validation.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status domain.CertificateStatus `json:"status"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return domain.ErrInvalidStatus
	}
	cert, err := h.Service.SetStatus(c.UserContext(), issuer.ID, id, body.Status)
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate status updated", cert, nil)
}

// SearchByRoll GET /api/v1/certificates/search/:rollNumber
func (h *Handlers) SearchByRoll(c *fiber.Ctx) error {
	found, err := h.Service.SearchByRoll(c.UserContext(), c.Params("rollNumber"))
	if err != nil {
		return err
	}
	return response.Success(c, "Certificates found", found, fiber.Map{"count": len(found)})
}

// ByFingerprint GET /api/v1/certificates/fingerprint/:hash
func (h *Handlers) ByFingerprint(c *fiber.Ctx) error {
	cert, err := h.Service.FindByFingerprint(c.UserContext(), c.Params("hash"))
	if err != nil {
		return err
	}
	return response.Success(c, "Certificate found", cert, nil)
}

type fingerprintBody struct {
	StudentName       string       `json:"student_name"`
	RollNumber        string       `json:"roll_number"`
	Course            string       `json:"course"`
	GraduationYear    certsvc.Year `json:"graduation_year"`
	Marks             string       `json:"marks"`
	CertificateNumber string       `json:"certificate_number"`
	IssueDate         string       `json:"issue_date"`
	IssuerID          string       `json:"issuer_id"`
	IssuerName        string       `json:"issuer_name"`
	IssuerCode        string       `json:"issuer_code"`
}

func (b fingerprintBody) record() fingerprint.Record {
	return fingerprint.Record{
		StudentName:       b.StudentName,
		RollNumber:        b.RollNumber,
		Course:            b.Course,
		GraduationYear:    string(b.GraduationYear),
		Marks:             b.Marks,
		CertificateNumber: b.CertificateNumber,
		IssueDate:         b.IssueDate,
		IssuerID:          b.IssuerID,
		IssuerName:        b.IssuerName,
		IssuerCode:        b.IssuerCode,
	}
}

// ComputeFingerprint POST /api/v1/fingerprints returns the canonical form and its fingerprint.
func (h *Handlers) ComputeFingerprint(c *fiber.Ctx) error {
	var body fingerprintBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return badBody(err)
	}
	canonical := fingerprint.Canonicalize(body.record())
	return response.Success(c, "Fingerprint computed", fiber.Map{
		"fingerprint_hash": fingerprint.Fingerprint(canonical),
		"canonical":        canonical,
	}, nil)
}
