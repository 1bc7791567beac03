// Package config loads the gateway session configuration from the
// environment, with defaults matching the Fabric test network layout.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultCryptoPath = "../../test-network/organizations/peerOrganizations/org1.example.com"

type Config struct {
	MSPID        string
	CertPath     string
	KeyPath      string
	TLSCertPath  string
	PeerEndpoint string
	GatewayPeer  string

	ChannelName   string
	ChaincodeName string

	// Account is the wallet-scoped identifier this session acts for.
	Account string

	Lookback time.Duration
	Debounce time.Duration

	DirectoryURL   string
	DirectoryToken string

	RecordsPath string
}

// Load reads CONSENTNET_* variables, consulting a .env file when present.
func Load() Config {
	// Missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()

	cryptoPath := getenv("CONSENTNET_CRYPTO_PATH", defaultCryptoPath)

	return Config{
		MSPID:        getenv("CONSENTNET_MSP_ID", "Org1MSP"),
		CertPath:     getenv("CONSENTNET_CERT_PATH", cryptoPath+"/users/User1@org1.example.com/msp/signcerts/User1@org1.example.com-cert.pem"),
		KeyPath:      getenv("CONSENTNET_KEY_PATH", cryptoPath+"/users/User1@org1.example.com/msp/keystore/"),
		TLSCertPath:  getenv("CONSENTNET_TLS_CERT_PATH", cryptoPath+"/peers/peer0.org1.example.com/tls/ca.crt"),
		PeerEndpoint: getenv("CONSENTNET_PEER_ENDPOINT", "localhost:7051"),
		GatewayPeer:  getenv("CONSENTNET_GATEWAY_PEER", "peer0.org1.example.com"),

		ChannelName:   getenv("CONSENTNET_CHANNEL", "mychannel"),
		ChaincodeName: getenv("CONSENTNET_CHAINCODE", "consentnet"),

		Account: getenv("CONSENTNET_ACCOUNT", ""),

		Lookback: getduration("CONSENTNET_LOOKBACK_HOURS", 168) * time.Hour,
		Debounce: getduration("CONSENTNET_DEBOUNCE_MS", 2000) * time.Millisecond,

		DirectoryURL:   getenv("CONSENTNET_DIRECTORY_URL", "http://localhost:5000"),
		DirectoryToken: getenv("CONSENTNET_DIRECTORY_TOKEN", ""),

		RecordsPath: getenv("CONSENTNET_RECORDS_PATH", "./records-db"),
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getduration(key string, fallback int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			return time.Duration(parsed)
		}
	}
	return time.Duration(fallback)
}
