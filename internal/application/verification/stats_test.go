package verification

import (
	"context"
	"testing"

	"certverify-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	e, mem, c, v := seed(t)
	ctx := context.Background()
	r := &Reporter{Certificates: mem, Audit: mem}

	empty, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.VerificationRate)
	assert.Equal(t, int64(1), empty.TotalCertificates)

	_, err = e.Verify(ctx, Query{SuppliedHash: c.FingerprintHash, Verifier: v})
	require.NoError(t, err)
	_, err = e.Verify(ctx, Query{RollNumber: "NOPE", Verifier: v})
	require.NoError(t, err)
	_, err = e.Verify(ctx, Query{RollNumber: "NOPE2"})
	require.NoError(t, err)

	s, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalVerifications)
	assert.Equal(t, int64(1), s.VerifiedCount)
	assert.Equal(t, int64(2), s.NotFoundCount)
	assert.Equal(t, int64(1), s.ActiveCertificates)
	assert.Equal(t, 33.33, s.VerificationRate)
}

func TestHistory(t *testing.T) {
	e, mem, c, v := seed(t)
	ctx := context.Background()
	r := &Reporter{Certificates: mem, Audit: mem}

	_, err := e.Verify(ctx, Query{SuppliedHash: c.FingerprintHash, Verifier: v})
	require.NoError(t, err)
	_, err = e.Verify(ctx, Query{RollNumber: "NOPE", Verifier: v})
	require.NoError(t, err)
	_, err = e.Verify(ctx, Query{RollNumber: "NOPE"})
	require.NoError(t, err)

	page, err := r.History(ctx, v.ID, "", domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalCount)

	page, err = r.History(ctx, v.ID, domain.OutcomeVerified, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.OutcomeVerified, page.Items[0].Outcome)

	_, err = r.History(ctx, v.ID, "maybe", domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}
