package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"certverify-backend/internal/domain"
	"certverify-backend/internal/infrastructure/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *store.MemoryStore, *domain.Issuer) {
	t.Helper()
	mem := store.NewMemoryStore()
	issuer := &domain.Issuer{
		ID:         uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:       "State University",
		Code:       "SU",
		APIKeyID:   "key",
		APIKeyHash: "hash",
	}
	require.NoError(t, mem.CreateIssuer(context.Background(), issuer))
	svc := &Service{Certificates: mem, Principals: mem, Now: func() time.Time { return fixedNow }}
	return svc, mem, issuer
}

func johnDoe() Input {
	return Input{
		StudentName:       "John Doe",
		RollNumber:        "cs2021001",
		Course:            "Computer Science",
		GraduationYear:    "2023",
		Marks:             "85%",
		CertificateNumber: "CERT-001",
		IssueDate:         "2023-06-15",
	}
}

func TestCreate_StoresCanonicalFieldsAndFingerprint(t *testing.T) {
	svc, mem, issuer := setup(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, issuer, johnDoe(), SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, "0x1c6bbf540f700d215408c17c17963714e0d4c393747f8c30947d5105fc095f2a", c.FingerprintHash)
	assert.Equal(t, "CS2021001", c.RollNumber)
	assert.Equal(t, domain.StatusActive, c.Status)
	assert.Equal(t, domain.PublicationUnpublished, c.PublicationState)

	got, err := mem.FindIssuerByID(ctx, issuer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CertificatesCount)
}

func TestCreate_Duplicates(t *testing.T) {
	svc, _, issuer := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, issuer, johnDoe(), SourceAPI)
	require.NoError(t, err)

	sameNumber := johnDoe()
	sameNumber.Marks = "90%"
	_, err = svc.Create(ctx, issuer, sameNumber, SourceAPI)
	assert.ErrorIs(t, err, domain.ErrDuplicateCertificateNumber)
}

func TestBuild_Validation(t *testing.T) {
	svc, _, issuer := setup(t)

	missing := johnDoe()
	missing.StudentName = " "
	missing.Course = ""
	_, err := svc.Build(issuer, missing, SourceAPI)
	require.ErrorIs(t, err, domain.ErrInvalidCertificate)
	assert.Contains(t, err.Error(), "student_name, course")

	badYear := johnDoe()
	badYear.GraduationYear = "soon"
	_, err = svc.Build(issuer, badYear, SourceAPI)
	assert.ErrorIs(t, err, domain.ErrInvalidCertificate)

	badDate := johnDoe()
	badDate.IssueDate = "yesterday"
	_, err = svc.Build(issuer, badDate, SourceAPI)
	assert.ErrorIs(t, err, domain.ErrInvalidCertificate)

	_, err = svc.Build(nil, johnDoe(), SourceAPI)
	assert.ErrorIs(t, err, domain.ErrInvalidCertificate)
}

func TestBuild_Defaults(t *testing.T) {
	svc, _, issuer := setup(t)
	in := johnDoe()
	in.CertificateNumber = ""
	in.IssueDate = ""

	c, err := svc.Build(issuer, in, SourceAPI)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.CertificateNumber, "CERT-20240510-"))
	require.NotNil(t, c.IssueDate)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), *c.IssueDate)

	other, err := svc.Build(issuer, in, SourceAPI)
	require.NoError(t, err)
	assert.NotEqual(t, c.CertificateNumber, other.CertificateNumber)
}

func TestYear_UnmarshalJSON(t *testing.T) {
	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{"graduation_year": 2023}`), &in))
	assert.Equal(t, Year("2023"), in.GraduationYear)
	require.NoError(t, json.Unmarshal([]byte(`{"graduation_year": "2022"}`), &in))
	assert.Equal(t, Year("2022"), in.GraduationYear)
	require.NoError(t, json.Unmarshal([]byte(`{"graduation_year": null}`), &in))
	assert.Equal(t, Year(""), in.GraduationYear)
}

func TestCreateMany_Summary(t *testing.T) {
	svc, mem, issuer := setup(t)
	ctx := context.Background()

	second := johnDoe()
	second.CertificateNumber = "CERT-002"
	second.RollNumber = "CS2021002"
	invalid := johnDoe()
	invalid.CertificateNumber = "CERT-003"
	invalid.RollNumber = ""

	summary := svc.CreateMany(ctx, issuer, []Input{johnDoe(), second, johnDoe(), invalid}, SourceBulk)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 2, summary.Errors)
	require.Len(t, summary.ErrorMessages, 2)
	assert.Equal(t, "Certificate CERT-001 already exists", summary.ErrorMessages[0])
	assert.Contains(t, summary.ErrorMessages[1], "CERT-003")
	assert.Len(t, summary.Created, 2)

	got, err := mem.FindIssuerByID(ctx, issuer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CertificatesCount)
}

func TestCreateMany_CapsErrorMessages(t *testing.T) {
	svc, _, issuer := setup(t)
	inputs := make([]Input, 15)
	summary := svc.CreateMany(context.Background(), issuer, inputs, SourceBulk)
	assert.Equal(t, 15, summary.Errors)
	assert.Len(t, summary.ErrorMessages, 10)
}

func TestSearchByRoll(t *testing.T) {
	svc, _, issuer := setup(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, issuer, johnDoe(), SourceAPI)
	require.NoError(t, err)

	found, err := svc.SearchByRoll(ctx, " cs2021001 ")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = svc.SearchByRoll(ctx, "X")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.SearchByRoll(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestFindByFingerprint(t *testing.T) {
	svc, _, issuer := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, issuer, johnDoe(), SourceAPI)
	require.NoError(t, err)

	got, err := svc.FindByFingerprint(ctx, strings.ToUpper(c.FingerprintHash[2:]))
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = svc.FindByFingerprint(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestSetStatus_OwnershipAndValidation(t *testing.T) {
	svc, mem, issuer := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, issuer, johnDoe(), SourceAPI)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, uuid.New(), c.ID, domain.StatusRevoked)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.SetStatus(ctx, issuer.ID, c.ID, "gone")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	updated, err := svc.SetStatus(ctx, issuer.ID, c.ID, domain.StatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevoked, updated.Status)
	stored, err := mem.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevoked, stored.Status)
	assert.Equal(t, c.FingerprintHash, stored.FingerprintHash)
}

func TestCreate_StoreFailure(t *testing.T) {
	svc, mem, issuer := setup(t)
	mem.FailWith = errors.New("connection reset")
	_, err := svc.Create(context.Background(), issuer, johnDoe(), SourceAPI)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
