package cert_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/efabox/instapay-api/internal/cert"
)

func selfSignedPEM(t *testing.T, cn string, ous []string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:         cn,
			OrganizationalUnit: ous,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestFromPEMBothMarkersInCN(t *testing.T) {
	pemBytes := selfSignedPEM(t, "VATSK-1234567890 POKLADNICA-88812345678900001", nil)

	identity, err := cert.FromPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, identity.Complete())
	require.Equal(t, "1234567890", identity.TenantID)
	require.Equal(t, "88812345678900001", identity.TerminalID)
}

func TestFromPEMSpaceSeparatedTerminal(t *testing.T) {
	pemBytes := selfSignedPEM(t, "VATSK-1234567890 POKLADNICA 88812345678900001", nil)

	identity, err := cert.FromPEM(pemBytes)
	require.NoError(t, err)
	require.Equal(t, "88812345678900001", identity.TerminalID)
}

func TestFromPEMTerminalFallsBackToOU(t *testing.T) {
	pemBytes := selfSignedPEM(t, "VATSK-1234567890", []string{"88812345678900001"})

	identity, err := cert.FromPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, identity.Complete())
	require.Equal(t, "88812345678900001", identity.TerminalID)
}

func TestFromPEMMissingTenantIsNotAnError(t *testing.T) {
	pemBytes := selfSignedPEM(t, "some-merchant.example", []string{"88812345678900001"})

	identity, err := cert.FromPEM(pemBytes)
	require.NoError(t, err)
	require.False(t, identity.Complete())
	require.Empty(t, identity.TenantID)
}

func TestFromPEMMalformedInput(t *testing.T) {
	_, err := cert.FromPEM([]byte("not a certificate"))
	require.Error(t, err)

	garbage := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x01, 0x02}})
	_, err = cert.FromPEM(garbage)
	require.Error(t, err)
}

func TestIdentityTopic(t *testing.T) {
	identity := cert.Identity{TenantID: "1234567890", TerminalID: "888123"}
	require.Equal(t, "VATSK-1234567890/POKLADNICA-888123/TX42", identity.Topic("TX42"))
}

func TestNewMaterialRequiresAllParts(t *testing.T) {
	_, err := cert.NewMaterial("cert", "key", "")
	require.ErrorIs(t, err, cert.ErrMaterialMissing)

	_, err = cert.NewMaterial("cert", "key", "ca")
	require.NoError(t, err)
}
