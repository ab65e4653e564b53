//nolint:lll,funlen // readablity
package traefik

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		domain  string
		want    *acmeEntry
		wantErr error
	}{
		{
			name:   "plain domain",
			data:   `{"dummy":{"Certificates":[{"domain":{"main":"example.com"}, "certificate": "cert1", "key": "key1"}]}}`,
			domain: "example.com",
			want:   &acmeEntry{Certificate: "cert1", Key: "key1"},
		},
		{
			name:   "wildcard domain in second resolver",
			data:   `{"a":{"Certificates":[]},"myresolver":{"Certificates":[{"domain":{"main":"*.example.com"}, "certificate": "cert2", "key": "key2"}]}}`,
			domain: "*.example.com",
			want:   &acmeEntry{Certificate: "cert2", Key: "key2"},
		},
		{
			name:    "unknown domain",
			data:    `{"dummy":{"Certificates":[{"domain":{"main":"example.com"}, "certificate": "cert1", "key": "key1"}]}}`,
			domain:  "notfound.com",
			wantErr: ErrDomainNotFound,
		},
		{
			name:    "empty store",
			data:    `{}`,
			domain:  "example.com",
			wantErr: ErrDomainNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookup([]byte(tt.data), tt.domain)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func selfSigned(t *testing.T, host string) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDer, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer})
}

func TestLoadCertificate(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "timing.example.com")
	store := fmt.Sprintf(`{"le":{"Certificates":[{"domain":{"main":"timing.example.com"},"certificate":%q,"key":%q}]}}`,
		base64.StdEncoding.EncodeToString(certPEM),
		base64.StdEncoding.EncodeToString(keyPEM))
	file := filepath.Join(t.TempDir(), "acme.json")
	require.NoError(t, os.WriteFile(file, []byte(store), 0o600))

	cert, err := LoadCertificate(file, "timing.example.com")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "timing.example.com", leaf.Subject.CommonName)

	_, err = LoadCertificate(file, "other.example.com")
	assert.ErrorIs(t, err, ErrDomainNotFound)

	_, err = LoadCertificate(filepath.Join(t.TempDir(), "missing.json"), "timing.example.com")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
