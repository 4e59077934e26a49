package cert

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"regexp"
	"strings"
)

var (
	tenantPattern   = regexp.MustCompile(`VATSK-(\d+)`)
	terminalPattern = regexp.MustCompile(`POKLADNICA[-\s]+(\d+)`)
	firstDigitRun   = regexp.MustCompile(`(\d+)`)
)

// Identity holds the merchant/till pair embedded in an eKasa client
// certificate Subject. TenantID comes from the VATSK marker, TerminalID from
// the POKLADNICA marker.
type Identity struct {
	TenantID   string `json:"vatsk"`
	TerminalID string `json:"pokladnica"`
}

// Complete reports whether both identity fields were found. An incomplete
// identity disables the confirmation flow but is not an error.
func (i Identity) Complete() bool {
	return i.TenantID != "" && i.TerminalID != ""
}

// Topic builds the broker topic for one transaction.
func (i Identity) Topic(transactionID string) string {
	return fmt.Sprintf("VATSK-%s/POKLADNICA-%s/%s", i.TenantID, i.TerminalID, transactionID)
}

// FromPEM extracts the identity from a PEM encoded certificate.
//
// The tenant id is taken from a VATSK-<digits> marker in the Subject CN. The
// terminal id is taken from a POKLADNICA-<digits> marker in the CN; when the
// CN carries no such marker the first digit run of the OU is used instead.
// The OU fallback is a heuristic observed in certificates issued without the
// POKLADNICA marker; there is no format to validate the digits against.
//
// A malformed certificate returns an error. A well-formed certificate whose
// Subject simply lacks the markers returns a zero Identity and no error.
func FromPEM(certPEM []byte) (Identity, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return Identity{}, fmt.Errorf("cert: no certificate block in PEM input")
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return Identity{}, fmt.Errorf("cert: parse certificate: %w", err)
	}

	cn := parsed.Subject.CommonName
	identity := Identity{}
	if m := tenantPattern.FindStringSubmatch(cn); m != nil {
		identity.TenantID = m[1]
	}
	if m := terminalPattern.FindStringSubmatch(cn); m != nil {
		identity.TerminalID = m[1]
	} else {
		for _, ou := range parsed.Subject.OrganizationalUnit {
			if m := firstDigitRun.FindStringSubmatch(ou); m != nil {
				identity.TerminalID = m[1]
				break
			}
		}
	}
	if !identity.Complete() {
		return Identity{}, nil
	}
	return identity, nil
}

// FromPEMString is a convenience wrapper for environment-supplied material.
func FromPEMString(certPEM string) (Identity, error) {
	trimmed := strings.TrimSpace(certPEM)
	if trimmed == "" {
		return Identity{}, nil
	}
	return FromPEM([]byte(trimmed))
}
