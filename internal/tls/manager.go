package tls

import (
	"crypto/tls"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"campus-auth-service/internal/util"
)

type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager
}

type TLSConfig struct {
	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	manager := &TLSManager{config: config}

	if config.AutoCert && config.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		zap.String("domain", m.config.Domain),
		zap.String("cache_dir", m.config.AutoCertDir))
}

// GetTLSConfig returns the TLS configuration for the HTTP server.
func (m *TLSManager) GetTLSConfig() *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if m.autoCert != nil {
		cfg.GetCertificate = m.autoCert.GetCertificate
	}

	return cfg
}

// GetAutocertManager exposes the ACME manager for the port-80 challenge
// handler; nil when autocert is not configured.
func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
