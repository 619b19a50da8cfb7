package publication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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

var preparedAt = time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC)

func seedCerts(t *testing.T, mem *store.MemoryStore, issuerID uuid.UUID, n int) []*domain.Certificate {
	t.Helper()
	var out []*domain.Certificate
	for i := 1; i <= n; i++ {
		c := &domain.Certificate{
			CertificateNumber: "CERT-" + uuid.NewString(),
			FingerprintHash:   "0x" + hex32() + hex32(),
			StudentName:       "Student",
			RollNumber:        fmt.Sprintf("R%d", i),
			Course:            "Physics",
			GraduationYear:    2022,
			Marks:             "A",
			IssuerID:          issuerID,
			IssuerName:        "Uni",
			CreatedAt:         preparedAt.Add(-time.Duration(n-i+1) * time.Hour),
		}
		require.NoError(t, mem.Create(context.Background(), c))
		out = append(out, c)
	}
	return out
}

func hex32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newCoordinator() (*Coordinator, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	return &Coordinator{
		Certificates: mem,
		Batches:      NewMemoryBatchStore(),
		Now:          func() time.Time { return preparedAt },
	}, mem
}

func TestPrepareBatch_IsSideEffectFree(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	certs := seedCerts(t, mem, issuer, 3)
	seedCerts(t, mem, uuid.New(), 2)

	b1, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)
	require.Len(t, b1.Items, 3)
	assert.Equal(t, certs[0].ID, b1.Items[0].CertificateID)
	assert.Equal(t, certs[0].FingerprintHash, b1.Items[0].FingerprintHash)
	assert.Equal(t, preparedAt.Add(DefaultBatchTTL), b1.ExpiresAt)

	b2, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)
	assert.Equal(t, b1.Items, b2.Items)
	assert.NotEqual(t, b1.ID, b2.ID)

	for _, cert := range certs {
		got, err := mem.FindByID(ctx, cert.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PublicationUnpublished, got.PublicationState)
	}
}

func TestConfirmBatch_UpdatesAndIsIdempotent(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	seedCerts(t, mem, issuer, 3)

	b, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)

	block := uint64(7)
	res, err := c.ConfirmBatch(ctx, issuer, "0xtx", &block, b.Items)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)
	assert.Empty(t, res.Skipped)

	again, err := c.ConfirmBatch(ctx, issuer, "0xtx", &block, b.Items)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Updated)
	require.Len(t, again.Skipped, 3)
	assert.Equal(t, SkipAlreadyPublished, again.Skipped[0].Reason)

	got, err := mem.FindByID(ctx, b.Items[0].CertificateID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicationPublished, got.PublicationState)
	assert.Equal(t, "0xtx", *got.ExternalTxRef)
	assert.Equal(t, uint64(7), *got.LedgerBlock)

	pending, err := c.PendingCount(ctx, issuer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestConfirmBatch_SkipsStaleForeignAndMissing(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	certs := seedCerts(t, mem, issuer, 2)
	foreign := seedCerts(t, mem, uuid.New(), 1)

	items := []Item{
		{CertificateID: certs[0].ID, FingerprintHash: "0x" + fmt.Sprintf("%064d", 0)},
		{CertificateID: certs[1].ID, FingerprintHash: certs[1].FingerprintHash},
		{CertificateID: foreign[0].ID, FingerprintHash: foreign[0].FingerprintHash},
		{CertificateID: uuid.New(), FingerprintHash: certs[0].FingerprintHash},
	}
	res, err := c.ConfirmBatch(ctx, issuer, "tx-9", nil, items)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	reasons := map[uuid.UUID]string{}
	for _, s := range res.Skipped {
		reasons[s.CertificateID] = s.Reason
	}
	assert.Equal(t, SkipFingerprintStale, reasons[certs[0].ID])
	assert.Equal(t, SkipForeignIssuer, reasons[foreign[0].ID])
	assert.Equal(t, SkipMissing, reasons[items[3].CertificateID])

	stale, err := mem.FindByID(ctx, certs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicationUnpublished, stale.PublicationState)
	other, err := mem.FindByID(ctx, foreign[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicationUnpublished, other.PublicationState)
}

func TestConfirmBatch_RequiresTxRef(t *testing.T) {
	c, _ := newCoordinator()
	_, err := c.ConfirmBatch(context.Background(), uuid.New(), "  ", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfirmation)
}

func TestConfirmBatch_ConcurrentConfirmsCountOnce(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	seedCerts(t, mem, issuer, 5)
	b, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.ConfirmBatch(ctx, issuer, fmt.Sprintf("tx-%d", i), nil, b.Items)
			if assert.NoError(t, err) {
				mu.Lock()
				total += res.Updated
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, total)
}

func TestStageBatch_AndPrepareIncludesStaged(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	seedCerts(t, mem, issuer, 2)

	b, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)
	n, err := c.StageBatch(ctx, issuer, b.Items)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.StageBatch(ctx, issuer, b.Items)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	retry, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)
	assert.Len(t, retry.Items, 2)

	res, err := c.ConfirmBatch(ctx, issuer, "tx", nil, retry.Items)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
}

func TestConfirmPrepared_AndAbandon(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	seedCerts(t, mem, issuer, 2)

	b, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)

	_, err = c.ConfirmPrepared(ctx, uuid.New(), b.ID, "tx", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := c.ConfirmPrepared(ctx, issuer, b.ID, "tx", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)

	_, err = c.ConfirmPrepared(ctx, issuer, b.ID, "tx", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	seedCerts(t, mem, issuer, 1)
	b2, err := c.PrepareBatch(ctx, issuer)
	require.NoError(t, err)
	require.NoError(t, c.AbandonBatch(ctx, issuer, b2.ID))
	assert.ErrorIs(t, c.AbandonBatch(ctx, issuer, b2.ID), domain.ErrNotFound)
}

func TestPrepareBatch_StoreFailure(t *testing.T) {
	c, mem := newCoordinator()
	mem.FailWith = errors.New("down")
	_, err := c.PrepareBatch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestMemoryBatchStore_Expiry(t *testing.T) {
	s := NewMemoryBatchStore()
	now := preparedAt
	s.now = func() time.Time { return now }
	ctx := context.Background()
	b := &Batch{ID: uuid.New(), IssuerID: uuid.New(), Items: []Item{{CertificateID: uuid.New()}}}
	require.NoError(t, s.Save(ctx, b, time.Minute))

	got, err := s.Load(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Items, got.Items)

	now = now.Add(time.Minute)
	_, err = s.Load(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmBatch_AcceptsBareHexAndRejectsMalformed(t *testing.T) {
	c, mem := newCoordinator()
	ctx := context.Background()
	issuer := uuid.New()
	certs := seedCerts(t, mem, issuer, 2)

	bare := strings.ToUpper(strings.TrimPrefix(certs[0].FingerprintHash, "0x"))
	n, err := c.StageBatch(ctx, issuer, []Item{
		{CertificateID: certs[0].ID, FingerprintHash: "  " + bare},
		{CertificateID: certs[1].ID, FingerprintHash: "not-a-hash"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := c.ConfirmBatch(ctx, issuer, "tx-bare", nil, []Item{
		{CertificateID: certs[0].ID, FingerprintHash: bare},
		{CertificateID: certs[1].ID, FingerprintHash: "not-a-hash"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, certs[1].ID, res.Skipped[0].CertificateID)
	assert.Equal(t, SkipFingerprintStale, res.Skipped[0].Reason)
	assert.ErrorIs(t, res.Skipped[0].Err(), domain.ErrStaleBatchItem)

	got, err := mem.FindByID(ctx, certs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicationPublished, got.PublicationState)
	untouched, err := mem.FindByID(ctx, certs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicationUnpublished, untouched.PublicationState)
}
