// Package auth issues and resolves the API keys that identify issuers, verifiers and the admin.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"certverify-backend/internal/domain"
	"certverify-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Principal is the caller identity attached to a request.
type Principal struct {
	Role     string           `json:"role"`
	Issuer   *domain.Issuer   `json:"issuer,omitempty"`
	Verifier *domain.Verifier `json:"verifier,omitempty"`
}

func (p *Principal) ID() uuid.UUID {
	switch {
	case p == nil:
		return uuid.Nil
	case p.Issuer != nil:
		return p.Issuer.ID
	case p.Verifier != nil:
		return p.Verifier.ID
	}
	return uuid.Nil
}

// Key is a freshly generated API key. Plain is shown once; only Hash is stored.
type Key struct {
	ID    string
	Plain string
	Hash  string
}

// GenerateKey returns a key of the form <keyID>.<secret> with the secret bcrypt-hashed.
func GenerateKey() (*Key, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	plain := hex.EncodeToString(secret)
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Plain: id + "." + plain, Hash: string(hash)}, nil
}

func splitKey(key string) (id, secret string, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", ErrAPIKeyRequired
	}
	id, secret, ok := strings.Cut(key, ".")
	if !ok || id == "" || secret == "" {
		return "", "", ErrMalformedAPIKey
	}
	return id, secret, nil
}

type Service struct {
	Principals domain.PrincipalRepository
	AdminKey   string
}

// Resolve maps a raw X-API-Key value to its principal. The admin key is compared in constant time.
func (s *Service) Resolve(ctx context.Context, key string) (*Principal, error) {
	if s.AdminKey != "" && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), []byte(s.AdminKey)) == 1 {
		return &Principal{Role: constants.Admin}, nil
	}
	id, secret, err := splitKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidAPIKey, err)
	}

	issuer, err := s.Principals.FindIssuerByKeyID(ctx, id)
	switch {
	case err == nil:
		if !matches(issuer.APIKeyHash, secret) {
			return nil, domain.ErrInvalidAPIKey
		}
		return &Principal{Role: constants.Issuer, Issuer: issuer}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	verifier, err := s.Principals.FindVerifierByKeyID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	if !matches(verifier.APIKeyHash, secret) {
		return nil, domain.ErrInvalidAPIKey
	}
	if !verifier.Active {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidAPIKey, ErrVerifierInactive)
	}
	return &Principal{Role: constants.Verifier, Verifier: verifier}, nil
}

func matches(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// RegisterIssuer stores a new issuer and returns it with its one-time plain key.
func (s *Service) RegisterIssuer(ctx context.Context, name, code string) (*domain.Issuer, string, error) {
	name, code = strings.TrimSpace(name), strings.TrimSpace(code)
	if name == "" || code == "" {
		return nil, "", ErrNameRequired
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}
	issuer := &domain.Issuer{Name: name, Code: code, APIKeyID: key.ID, APIKeyHash: key.Hash}
	if err := s.Principals.CreateIssuer(ctx, issuer); err != nil {
		return nil, "", err
	}
	return issuer, key.Plain, nil
}

func (s *Service) RegisterVerifier(ctx context.Context, name, organization string) (*domain.Verifier, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrNameRequired
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}
	verifier := &domain.Verifier{
		Name:         name,
		Organization: strings.TrimSpace(organization),
		APIKeyID:     key.ID,
		APIKeyHash:   key.Hash,
		Active:       true,
	}
	if err := s.Principals.CreateVerifier(ctx, verifier); err != nil {
		return nil, "", err
	}
	return verifier, key.Plain, nil
}
