package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSFiles names the PEM files securing the agent hub.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	ClientCA string // agents must present a certificate signed by this CA
}

func (f TLSFiles) enabled() bool {
	return f.CertFile != "" || f.KeyFile != ""
}

// ServerConfig loads the hub's certificate. It returns a nil config when no
// certificate is configured so the hub serves plain websockets.
func (f TLSFiles) ServerConfig() (*tls.Config, error) {
	if !f.enabled() {
		if f.ClientCA != "" {
			return nil, errors.New("client ca set without a server certificate")
		}
		return nil, nil
	}
	if f.CertFile == "" || f.KeyFile == "" {
		return nil, errors.New("tls needs both cert and key")
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load cert/key: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if f.ClientCA == "" {
		return cfg, nil
	}
	pool, err := loadPool(f.ClientCA)
	if err != nil {
		return nil, err
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("invalid client ca %s", path)
	}
	return pool, nil
}
