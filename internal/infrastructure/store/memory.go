package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"certverify-backend/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of the repositories. Values are copied in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	certificates map[uuid.UUID]domain.Certificate
	logs         []domain.VerificationLog
	issuers      map[uuid.UUID]domain.Issuer
	verifiers    map[uuid.UUID]domain.Verifier

	// FailWith, when set, is returned (wrapped) by every operation.
	FailWith error
}

var (
	_ domain.CertificateRepository = (*MemoryStore)(nil)
	_ domain.AuditSink             = (*MemoryStore)(nil)
	_ domain.AuditReader           = (*MemoryStore)(nil)
	_ domain.PrincipalRepository   = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		certificates: make(map[uuid.UUID]domain.Certificate),
		issuers:      make(map[uuid.UUID]domain.Issuer),
		verifiers:    make(map[uuid.UUID]domain.Verifier),
	}
}

func (m *MemoryStore) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if m.FailWith != nil {
		return unavailable(m.FailWith)
	}
	return nil
}

func (m *MemoryStore) Create(ctx context.Context, c *domain.Certificate) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.certificates {
		if existing.CertificateNumber == c.CertificateNumber {
			return domain.ErrDuplicateCertificateNumber
		}
	}
	for _, existing := range m.certificates {
		if existing.FingerprintHash == c.FingerprintHash {
			return domain.ErrDuplicateFingerprint
		}
	}
	c.PrepareForInsert(time.Now().UTC())
	m.certificates[c.ID] = *c
	return nil
}

func (m *MemoryStore) findOne(ctx context.Context, match func(*domain.Certificate) bool) (*domain.Certificate, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.certificates {
		if match(&c) {
			out := c
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	return m.findOne(ctx, func(c *domain.Certificate) bool { return c.ID == id })
}

func (m *MemoryStore) FindByCertificateNumber(ctx context.Context, number string) (*domain.Certificate, error) {
	number = strings.TrimSpace(number)
	return m.findOne(ctx, func(c *domain.Certificate) bool { return c.CertificateNumber == number })
}

func (m *MemoryStore) FindByFingerprint(ctx context.Context, hash string) (*domain.Certificate, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	return m.findOne(ctx, func(c *domain.Certificate) bool { return c.FingerprintHash == hash })
}

// newestFirst orders by creation time descending, ties broken by id descending.
func newestFirst(items []domain.Certificate) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
}

func (m *MemoryStore) FindByRollNumber(ctx context.Context, rollNumber string) ([]domain.Certificate, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	roll := strings.ToUpper(strings.TrimSpace(rollNumber))
	m.mu.RLock()
	var out []domain.Certificate
	for _, c := range m.certificates {
		if c.RollNumber == roll {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()
	newestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListByIssuer(ctx context.Context, issuerID uuid.UUID, req domain.PageRequest) (domain.Page[domain.Certificate], error) {
	if err := m.fail(ctx); err != nil {
		return domain.Page[domain.Certificate]{}, err
	}
	req = req.Normalize()
	m.mu.RLock()
	var all []domain.Certificate
	for _, c := range m.certificates {
		if c.IssuerID == issuerID {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()
	newestFirst(all)
	return domain.NewPage(pageSlice(all, req), req, int64(len(all))), nil
}

func pageSlice[T any](all []T, req domain.PageRequest) []T {
	start := req.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + req.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (m *MemoryStore) update(ctx context.Context, id uuid.UUID, apply func(*domain.Certificate)) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certificates[id]
	if !ok {
		return domain.ErrNotFound
	}
	apply(&c)
	m.certificates[id] = c
	return nil
}

func (m *MemoryStore) IncrementVerificationCount(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.update(ctx, id, func(c *domain.Certificate) {
		c.VerificationCount++
		c.LastVerifiedAt = &at
	})
}

func (m *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status domain.CertificateStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	return m.update(ctx, id, func(c *domain.Certificate) {
		c.Status = status
		c.UpdatedAt = time.Now().UTC()
	})
}

func (m *MemoryStore) TransitionPublication(ctx context.Context, t domain.PublicationTransition) (bool, error) {
	if err := m.fail(ctx); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certificates[t.CertificateID]
	if !ok || c.IssuerID != t.IssuerID || c.FingerprintHash != t.ExpectedHash || !c.PublicationState.CanAdvanceTo(t.To) {
		return false, nil
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	c.PublicationState = t.To
	c.UpdatedAt = at
	if t.To == domain.PublicationPublished {
		ref := t.ExternalTxRef
		c.ExternalTxRef = &ref
		c.LedgerBlock = t.LedgerBlock
		c.PublishedAt = &at
	}
	m.certificates[c.ID] = c
	return true, nil
}

func (m *MemoryStore) unpublished(issuerID uuid.UUID) []domain.Certificate {
	var out []domain.Certificate
	for _, c := range m.certificates {
		if c.IssuerID == issuerID && c.PublicationState != domain.PublicationPublished {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryStore) CountUnpublished(ctx context.Context, issuerID uuid.UUID) (int64, error) {
	if err := m.fail(ctx); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.unpublished(issuerID))), nil
}

func (m *MemoryStore) ListUnpublished(ctx context.Context, issuerID uuid.UUID) ([]domain.Certificate, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := m.unpublished(issuerID)
	m.mu.RUnlock()
	newestFirst(out)
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *MemoryStore) CountCertificates(ctx context.Context) (int64, int64, error) {
	if err := m.fail(ctx); err != nil {
		return 0, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active int64
	for _, c := range m.certificates {
		if c.Status == domain.StatusActive {
			active++
		}
	}
	return int64(len(m.certificates)), active, nil
}

func (m *MemoryStore) Append(ctx context.Context, entry *domain.VerificationLog) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = time.Now().UTC()
	}
	if entry.Flags == nil {
		entry.Flags = []string{}
	}
	m.mu.Lock()
	m.logs = append(m.logs, *entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f domain.AuditFilter, req domain.PageRequest) (domain.Page[domain.VerificationLog], error) {
	if err := m.fail(ctx); err != nil {
		return domain.Page[domain.VerificationLog]{}, err
	}
	req = req.Normalize()
	m.mu.RLock()
	var all []domain.VerificationLog
	for _, l := range m.logs {
		if f.VerifierID != nil && (l.VerifierID == nil || *l.VerifierID != *f.VerifierID) {
			continue
		}
		if f.CertificateID != nil && (l.CertificateID == nil || *l.CertificateID != *f.CertificateID) {
			continue
		}
		if f.Outcome != "" && l.Outcome != f.Outcome {
			continue
		}
		all = append(all, l)
	}
	m.mu.RUnlock()
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].VerifiedAt.Equal(all[j].VerifiedAt) {
			return all[i].VerifiedAt.After(all[j].VerifiedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})
	return domain.NewPage(pageSlice(all, req), req, int64(len(all))), nil
}

func (m *MemoryStore) CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Outcome]int64)
	for _, l := range m.logs {
		out[l.Outcome]++
	}
	return out, nil
}

// Logs returns a copy of every appended audit entry in insertion order.
func (m *MemoryStore) Logs() []domain.VerificationLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.VerificationLog(nil), m.logs...)
}

func (m *MemoryStore) CreateIssuer(ctx context.Context, i *domain.Issuer) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	i.Code = strings.ToUpper(strings.TrimSpace(i.Code))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.issuers {
		if existing.Code == i.Code {
			return domain.ErrDuplicateIssuerCode
		}
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	m.issuers[i.ID] = *i
	return nil
}

func (m *MemoryStore) CreateVerifier(ctx context.Context, v *domain.Verifier) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	m.mu.Lock()
	m.verifiers[v.ID] = *v
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) FindIssuerByID(ctx context.Context, id uuid.UUID) (*domain.Issuer, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.issuers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (m *MemoryStore) FindIssuerByKeyID(ctx context.Context, keyID string) (*domain.Issuer, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, i := range m.issuers {
		if i.APIKeyID == keyID {
			out := i
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryStore) FindVerifierByKeyID(ctx context.Context, keyID string) (*domain.Verifier, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.verifiers {
		if v.APIKeyID == keyID {
			out := v
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryStore) IncrementIssuerCertificates(ctx context.Context, id uuid.UUID, delta int64) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issuers[id]
	if !ok {
		return domain.ErrNotFound
	}
	i.CertificatesCount += delta
	i.UpdatedAt = time.Now().UTC()
	m.issuers[id] = i
	return nil
}

func (m *MemoryStore) IncrementVerifierUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifiers[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.VerificationCount++
	v.LastVerificationAt = &at
	m.verifiers[id] = v
	return nil
}
