package cert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
)

// ErrMaterialMissing indicates the client certificate, key or CA bundle is
// not configured. This is an operator problem, not a caller problem.
var ErrMaterialMissing = errors.New("cert: client certificate material not configured")

// Material bundles the PEM encoded mTLS credentials used for both the
// transaction-id API and the broker connection.
type Material struct {
	CertPEM []byte
	KeyPEM  []byte
	CAPEM   []byte
}

// NewMaterial validates presence of all three PEM blobs.
func NewMaterial(certPEM, keyPEM, caPEM string) (Material, error) {
	if strings.TrimSpace(certPEM) == "" || strings.TrimSpace(keyPEM) == "" || strings.TrimSpace(caPEM) == "" {
		return Material{}, ErrMaterialMissing
	}
	return Material{
		CertPEM: []byte(certPEM),
		KeyPEM:  []byte(keyPEM),
		CAPEM:   []byte(caPEM),
	}, nil
}

// Identity parses the client certificate and extracts the tenant/terminal
// identity from its Subject.
func (m Material) Identity() (Identity, error) {
	return FromPEM(m.CertPEM)
}

// TLSConfig builds a tls.Config presenting the client keypair and verifying
// the server against the CA bundle. Server verification is always on.
func (m Material) TLSConfig() (*tls.Config, error) {
	keypair, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("cert: load client keypair: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(m.CAPEM) {
		return nil, errors.New("cert: no usable certificates in CA bundle")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{keypair},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
