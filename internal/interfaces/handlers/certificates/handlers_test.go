package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	certsvc "certverify-backend/internal/application/certificates"
	"certverify-backend/internal/auth"
	"certverify-backend/internal/infrastructure/store"
	"certverify-backend/internal/middleware"
	"certverify-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app       *fiber.App
	mem       *store.MemoryStore
	issuerKey string
	otherKey  string
}

func setupCertificatesTest(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	authSvc := &auth.Service{Principals: mem}
	ctx := context.Background()
	_, key, err := authSvc.RegisterIssuer(ctx, "State University", "SU")
	require.NoError(t, err)
	_, other, err := authSvc.RegisterIssuer(ctx, "Other College", "OC")
	require.NoError(t, err)

	h := &Handlers{Service: &certsvc.Service{Certificates: mem, Principals: mem}}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(middleware.Authenticate(authSvc))
	app.Post("/fingerprints", h.ComputeFingerprint)
	app.Get("/certificates/search/:rollNumber", h.SearchByRoll)
	app.Get("/certificates/fingerprint/:hash", h.ByFingerprint)
	g := app.Group("/certificates", middleware.RequireAuth(), middleware.AuthorizePermission(constants.IssueCertificates))
	g.Post("/", h.Create)
	g.Post("/bulk", h.Bulk)
	g.Post("/upload", h.Upload)
	g.Get("/", h.List)
	g.Patch("/:id/status", h.SetStatus)
	return &fixture{app: app, mem: mem, issuerKey: key, otherKey: other}
}

func (f *fixture) do(t *testing.T, method, path, key string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

var johnDoe = map[string]interface{}{
	"student_name":       "John Doe",
	"roll_number":        "cs2021001",
	"course":             "Computer Science",
	"graduation_year":    2023,
	"marks":              "85%",
	"certificate_number": "CERT-001",
	"issue_date":         "2023-06-15",
}

func TestCreate_AndDuplicate(t *testing.T) {
	f := setupCertificatesTest(t)

	resp, out := f.do(t, "POST", "/certificates", f.issuerKey, johnDoe)
	require.Equal(t, 201, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "CS2021001", data["roll_number"])
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, data["fingerprint_hash"])

	resp, out = f.do(t, "POST", "/certificates", f.issuerKey, johnDoe)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
}

func TestCreate_Auth(t *testing.T) {
	f := setupCertificatesTest(t)
	resp, _ := f.do(t, "POST", "/certificates", "", johnDoe)
	assert.Equal(t, 401, resp.StatusCode)
	resp, _ = f.do(t, "POST", "/certificates", "bogus.key", johnDoe)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestCreate_Invalid(t *testing.T) {
	f := setupCertificatesTest(t)
	resp, out := f.do(t, "POST", "/certificates", f.issuerKey, map[string]interface{}{"student_name": "X"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, out["error"].(map[string]interface{})["message"], "roll_number")
}

func TestBulk(t *testing.T) {
	f := setupCertificatesTest(t)
	second := map[string]interface{}{
		"student_name": "Jane Roe", "roll_number": "CS2021002", "course": "Physics",
		"graduation_year": "2022", "marks": "A",
	}
	resp, out := f.do(t, "POST", "/certificates/bulk", f.issuerKey, map[string]interface{}{
		"certificates": []interface{}{johnDoe, second, johnDoe},
	})
	require.Equal(t, 200, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(2), data["successful"])
	assert.Equal(t, float64(1), data["errors"])

	resp, _ = f.do(t, "POST", "/certificates/bulk", f.issuerKey, []interface{}{})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestUpload_CSV(t *testing.T) {
	f := setupCertificatesTest(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "grads.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Student Name,Roll Number,Course,Year,Marks\nAda,R1,Maths,2020,90\nAlan,R2,Maths,2020,88\n"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/certificates/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(middleware.APIKeyHeader, f.issuerKey)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, float64(2), out["data"].(map[string]interface{})["successful"])

	req = httptest.NewRequest("POST", "/certificates/upload", nil)
	req.Header.Set(middleware.APIKeyHeader, f.issuerKey)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestList_ScopedToIssuer(t *testing.T) {
	f := setupCertificatesTest(t)
	f.do(t, "POST", "/certificates", f.issuerKey, johnDoe)

	resp, out := f.do(t, "GET", "/certificates?page=1&limit=5", f.issuerKey, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, out["data"], 1)
	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["total_count"])
	assert.Equal(t, float64(5), meta["page_size"])

	_, out = f.do(t, "GET", "/certificates", f.otherKey, nil)
	assert.Len(t, out["data"], 0)
}

func TestSetStatus(t *testing.T) {
	f := setupCertificatesTest(t)
	_, out := f.do(t, "POST", "/certificates", f.issuerKey, johnDoe)
	id := out["data"].(map[string]interface{})["id"].(string)

	resp, _ := f.do(t, "PATCH", "/certificates/"+id+"/status", f.otherKey, map[string]string{"status": "revoked"})
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = f.do(t, "PATCH", "/certificates/"+id+"/status", f.issuerKey, map[string]string{"status": "deleted"})
	assert.Equal(t, 400, resp.StatusCode)

	resp, out = f.do(t, "PATCH", "/certificates/"+id+"/status", f.issuerKey, map[string]string{"status": "revoked"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "revoked", out["data"].(map[string]interface{})["status"])

	resp, _ = f.do(t, "PATCH", "/certificates/not-a-uuid/status", f.issuerKey, map[string]string{"status": "revoked"})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPublicLookups(t *testing.T) {
	f := setupCertificatesTest(t)
	_, out := f.do(t, "POST", "/certificates", f.issuerKey, johnDoe)
	hash := out["data"].(map[string]interface{})["fingerprint_hash"].(string)

	resp, out := f.do(t, "GET", "/certificates/search/cs2021001", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, out["data"], 1)

	resp, _ = f.do(t, "GET", "/certificates/search/NOPE", "", nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/certificates/fingerprint/"+hash, "", nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/certificates/fingerprint/deadbeef", "", nil)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestComputeFingerprint_GoldenVector(t *testing.T) {
	f := setupCertificatesTest(t)
	body := map[string]interface{}{}
	for k, v := range johnDoe {
		body[k] = v
	}
	body["roll_number"] = "CS2021001"
	body["issuer_id"] = "11111111-1111-1111-1111-111111111111"
	body["issuer_name"] = "State University"
	body["issuer_code"] = "SU"

	resp, out := f.do(t, "POST", "/fingerprints", "", body)
	require.Equal(t, 200, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "0x1c6bbf540f700d215408c17c17963714e0d4c393747f8c30947d5105fc095f2a", data["fingerprint_hash"])

	stored, err := f.mem.FindByRollNumber(context.Background(), "CS2021001")
	require.NoError(t, err)
	assert.Empty(t, stored, "computing a fingerprint stores nothing")
}
