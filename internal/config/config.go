package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	AdminKey            string
	FrontendURLEndsWith string
	DevPassword         string
	LogLevel            string
	BatchTTL            time.Duration
	Ledger              LedgerConfig
}

// LedgerConfig selects the Fabric gateway used to anchor fingerprints. Disabled by default.
type LedgerConfig struct {
	Enabled      bool
	PeerEndpoint string
	GatewayPeer  string
	TLSCertPath  string
	CertPath     string
	KeyPath      string
	MSPID        string
	Channel      string
	Chaincode    string
	Function     string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BATCH_TTL", "30m")
	v.SetDefault("LEDGER_ENABLED", false)
	v.SetDefault("LEDGER_MSP_ID", "Org1MSP")
	v.SetDefault("LEDGER_CHANNEL", "mychannel")
	v.SetDefault("LEDGER_CHAINCODE", "certificates")
	v.SetDefault("LEDGER_FUNCTION", "AnchorFingerprints")
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	env := v.GetString("APP_ENV")
	if env == "" {
		env = v.GetString("NODE_ENV")
	}
	if env == "" {
		env = "development"
	}

	var dbURL string
	switch env {
	case "production":
		dbURL = v.GetString("DATABASE_URL_PROD")
	case "test":
		dbURL = v.GetString("DATABASE_URL_TEST")
	default:
		dbURL = v.GetString("DATABASE_URL_DEV")
	}

	ttl, err := time.ParseDuration(v.GetString("BATCH_TTL"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("BATCH_TTL must be a positive duration, got %q", v.GetString("BATCH_TTL"))
	}

	return &Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		DatabaseURL:         dbURL,
		RedisURL:            v.GetString("REDIS_URL"),
		AdminKey:            v.GetString("ADMIN_KEY"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		BatchTTL:            ttl,
		Ledger: LedgerConfig{
			Enabled:      v.GetBool("LEDGER_ENABLED"),
			PeerEndpoint: v.GetString("LEDGER_PEER_ENDPOINT"),
			GatewayPeer:  v.GetString("LEDGER_GATEWAY_PEER"),
			TLSCertPath:  v.GetString("LEDGER_TLS_CERT"),
			CertPath:     v.GetString("LEDGER_SIGNER_CERT"),
			KeyPath:      v.GetString("LEDGER_KEY_PATH"),
			MSPID:        v.GetString("LEDGER_MSP_ID"),
			Channel:      v.GetString("LEDGER_CHANNEL"),
			Chaincode:    v.GetString("LEDGER_CHAINCODE"),
			Function:     v.GetString("LEDGER_FUNCTION"),
		},
	}, nil
}
