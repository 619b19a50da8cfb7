// Package ledger anchors certificate fingerprints on a Hyperledger Fabric channel.
package ledger

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"certverify-backend/internal/domain"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var ErrEmptyBatch = errors.New("Nothing to publish")

type FabricConfig struct {
	PeerEndpoint string
	GatewayPeer  string
	TLSCertPath  string
	CertPath     string
	// KeyPath is a PEM file or a keystore directory; the first file in a directory is used.
	KeyPath   string
	MSPID     string
	Channel   string
	Chaincode string
	Function  string
}

func (c FabricConfig) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"peer endpoint", c.PeerEndpoint},
		{"tls cert", c.TLSCertPath},
		{"signer cert", c.CertPath},
		{"key", c.KeyPath},
		{"msp id", c.MSPID},
		{"channel", c.Channel},
		{"chaincode", c.Chaincode},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("ledger config incomplete: %v", missing)
	}
	return nil
}

type submitFunc func(ctx context.Context, payload string) (*domain.LedgerReceipt, error)

// FabricPublisher submits a batch as one transaction and waits for its commit status.
type FabricPublisher struct {
	conn    *grpc.ClientConn
	gateway *client.Gateway
	submit  submitFunc
}

var _ domain.LedgerPublisher = (*FabricPublisher)(nil)

func NewFabricPublisher(cfg FabricConfig) (*FabricPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Function == "" {
		cfg.Function = "AnchorFingerprints"
	}

	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	id, err := loadIdentity(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sign, err := loadSign(cfg.KeyPath)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	p := &FabricPublisher{conn: conn, gateway: gw}
	p.submit = func(ctx context.Context, payload string) (*domain.LedgerReceipt, error) {
		proposal, err := contract.NewProposal(cfg.Function, client.WithArguments(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create proposal: %w", err)
		}
		tx, err := proposal.EndorseWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to endorse transaction: %w", err)
		}
		commit, err := tx.SubmitWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to submit transaction: %w", err)
		}
		status, err := commit.StatusWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get commit status: %w", err)
		}
		if !status.Successful {
			return nil, fmt.Errorf("transaction %s failed to commit with status code %d", status.TransactionID, int32(status.Code))
		}
		return &domain.LedgerReceipt{TxRef: status.TransactionID, BlockNumber: status.BlockNumber}, nil
	}
	return p, nil
}

func (p *FabricPublisher) Publish(ctx context.Context, entries []domain.LedgerEntry) (*domain.LedgerReceipt, error) {
	payload, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, payload)
}

func (p *FabricPublisher) Close() error {
	if p.gateway != nil {
		p.gateway.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type anchorEntry struct {
	FingerprintHash   string `json:"fingerprintHash"`
	CertificateNumber string `json:"certificateNumber"`
}

// encodeEntries renders the chaincode argument: a JSON array in batch order.
func encodeEntries(entries []domain.LedgerEntry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyBatch
	}
	out := make([]anchorEntry, len(entries))
	for i, e := range entries {
		if e.FingerprintHash == "" {
			return "", fmt.Errorf("entry %d has no fingerprint", i)
		}
		out[i] = anchorEntry{FingerprintHash: e.FingerprintHash, CertificateNumber: e.CertificateNumber}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func dial(cfg FabricConfig) (*grpc.ClientConn, error) {
	pemBytes, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tls certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("failed to add tls certificate to pool")
	}
	creds := credentials.NewClientTLSFromCert(pool, cfg.GatewayPeer)
	conn, err := grpc.NewClient(cfg.PeerEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

func loadIdentity(cfg FabricConfig) (*identity.X509Identity, error) {
	pemBytes, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read signer certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer certificate: %w", err)
	}
	return identity.NewX509Identity(cfg.MSPID, cert)
}

func loadSign(keyPath string) (identity.Sign, error) {
	pemBytes, err := readKey(keyPath)
	if err != nil {
		return nil, err
	}
	key, err := identity.PrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return identity.NewPrivateKeySign(key)
}

func readKey(keyPath string) ([]byte, error) {
	info, err := os.Stat(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	if !info.IsDir() {
		return os.ReadFile(keyPath)
	}
	files, err := os.ReadDir(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key directory: %w", err)
	}
	for _, f := range files {
		if !f.IsDir() {
			return os.ReadFile(filepath.Join(keyPath, f.Name()))
		}
	}
	return nil, fmt.Errorf("no private key found in %s", keyPath)
}
