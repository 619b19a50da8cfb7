package domain

import "errors"

var (
	ErrDuplicateCertificateNumber = errors.New("Certificate number already exists")
	ErrDuplicateFingerprint       = errors.New("Certificate with identical content already exists")
	ErrDuplicateIssuerCode        = errors.New("Issuer code already exists")
	ErrInvalidQuery               = errors.New("Invalid verification query")
	ErrInvalidCertificate         = errors.New("Invalid certificate record")
	ErrInvalidStatus              = errors.New("Invalid certificate status")
	ErrInvalidConfirmation        = errors.New("Invalid publication confirmation")
	ErrNotFound                   = errors.New("Not found")
	ErrStoreUnavailable           = errors.New("Certificate store unavailable")
	ErrStaleBatchItem             = errors.New("Batch item no longer matches stored certificate")
	ErrLedgerUnavailable          = errors.New("Ledger publisher unavailable")
	ErrInvalidAPIKey              = errors.New("Invalid or missing API key")
)
