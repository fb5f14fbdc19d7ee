// Package acme handles automatic TLS certificate management.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"
)

// Manager obtains and renews a certificate for one domain via Let's
// Encrypt HTTP-01/TLS-ALPN challenges, storing certificate material in the
// shared SQLite database.
type Manager struct {
	Domain  string
	Email   string
	Staging bool
	DB      *sql.DB
	Logger  *zap.Logger

	config *certmagic.Config
	issuer *certmagic.ACMEIssuer
}

// NewManager creates a new ACME manager.
func NewManager(domain, email string, db *sql.DB, staging bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger
	return &Manager{
		Domain:  domain,
		Email:   email,
		Staging: staging,
		DB:      db,
		Logger:  logger,
	}
}

// Manage obtains the certificate, blocking until issuance succeeds or fails.
func (m *Manager) Manage(ctx context.Context) error {
	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(m.DB, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return fmt.Errorf("create certmagic storage: %w", err)
	}

	m.config = certmagic.NewDefault()
	m.config.Storage = storage
	m.config.Logger = m.Logger

	caURL := certmagic.LetsEncryptProductionCA
	if m.Staging {
		caURL = certmagic.LetsEncryptStagingCA
	}

	m.issuer = certmagic.NewACMEIssuer(m.config, certmagic.ACMEIssuer{
		CA:     caURL,
		Email:  m.Email,
		Agreed: true,
		Logger: m.Logger,
	})
	m.config.Issuers = []certmagic.Issuer{m.issuer}

	if err := m.config.ManageSync(ctx, []string{m.Domain}); err != nil {
		return fmt.Errorf("manage certificate for %s: %w", m.Domain, err)
	}
	return nil
}

// TLSConfig returns a tls.Config serving the managed certificate.
func (m *Manager) TLSConfig() *tls.Config {
	cfg := m.config.TLSConfig()
	cfg.NextProtos = append([]string{"h2", "http/1.1"}, cfg.NextProtos...)
	return cfg
}

// HTTPChallengeHandler wraps next so the plain-HTTP listener can answer
// HTTP-01 challenges.
func (m *Manager) HTTPChallengeHandler(next http.Handler) http.Handler {
	return m.issuer.HTTPChallengeHandler(next)
}
