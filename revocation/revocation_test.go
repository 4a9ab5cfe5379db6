package revocation

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// newIssuer builds a self-signed CA capable of signing CRLs and OCSP
// responses for the fixtures below.
func newIssuer(t *testing.T) (*ecdsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate issuer key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Revocation Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("create issuer certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse issuer certificate: %v", err)
	}
	return key, cert
}

func newCRL(t *testing.T, key *ecdsa.PrivateKey, issuer *x509.Certificate, revoked ...int64) []byte {
	t.Helper()

	var entries []x509.RevocationListEntry
	for _, serial := range revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   big.NewInt(serial),
			RevocationTime: time.Now(),
		})
	}
	template := &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now(),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}
	crl, err := x509.CreateRevocationList(rand.Reader, template, issuer, key)
	if err != nil {
		t.Fatalf("create CRL: %v", err)
	}
	return crl
}

func newOCSPResponse(t *testing.T, key *ecdsa.PrivateKey, issuer *x509.Certificate, serial int64, status int) []byte {
	t.Helper()

	now := time.Now()
	template := ocsp.Response{
		Status:       status,
		SerialNumber: big.NewInt(serial),
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(24 * time.Hour),
	}
	if status == ocsp.Revoked {
		template.RevokedAt = now
		template.RevocationReason = ocsp.KeyCompromise
	}
	resp, err := ocsp.CreateResponse(issuer, issuer, template, key)
	if err != nil {
		t.Fatalf("create OCSP response: %v", err)
	}
	return resp
}

func TestInfoArchivalAdd(t *testing.T) {
	var info InfoArchival

	if err := info.AddCRL([]byte("crl-bytes")); err != nil {
		t.Fatalf("AddCRL: %v", err)
	}
	if err := info.AddOCSP([]byte("ocsp-bytes")); err != nil {
		t.Fatalf("AddOCSP: %v", err)
	}

	if len(info.CRL) != 1 || !bytes.Equal(info.CRL[0].FullBytes, []byte("crl-bytes")) {
		t.Errorf("CRL entries = %v, want one entry with the raw bytes", info.CRL)
	}
	if len(info.OCSP) != 1 || !bytes.Equal(info.OCSP[0].FullBytes, []byte("ocsp-bytes")) {
		t.Errorf("OCSP entries = %v, want one entry with the raw bytes", info.OCSP)
	}
}

func TestIsRevoked(t *testing.T) {
	key, issuer := newIssuer(t)

	certWithSerial := func(serial int64) *x509.Certificate {
		return &x509.Certificate{SerialNumber: big.NewInt(serial)}
	}

	t.Run("RevokedByCRL", func(t *testing.T) {
		var info InfoArchival
		if err := info.AddCRL(newCRL(t, key, issuer, 1234)); err != nil {
			t.Fatalf("AddCRL: %v", err)
		}

		if !info.IsRevoked(certWithSerial(1234)) {
			t.Error("IsRevoked = false for serial listed in the CRL")
		}
		if info.IsRevoked(certWithSerial(5678)) {
			t.Error("IsRevoked = true for serial absent from the CRL")
		}
	})

	t.Run("RevokedByOCSP", func(t *testing.T) {
		var info InfoArchival
		if err := info.AddOCSP(newOCSPResponse(t, key, issuer, 4321, ocsp.Revoked)); err != nil {
			t.Fatalf("AddOCSP: %v", err)
		}

		if !info.IsRevoked(certWithSerial(4321)) {
			t.Error("IsRevoked = false for serial with a revoked OCSP status")
		}
		if info.IsRevoked(certWithSerial(1111)) {
			t.Error("IsRevoked = true for serial the response does not cover")
		}
	})

	t.Run("GoodOCSPStatus", func(t *testing.T) {
		var info InfoArchival
		if err := info.AddOCSP(newOCSPResponse(t, key, issuer, 7777, ocsp.Good)); err != nil {
			t.Fatalf("AddOCSP: %v", err)
		}

		if info.IsRevoked(certWithSerial(7777)) {
			t.Error("IsRevoked = true for serial with a good OCSP status")
		}
	})

	t.Run("MalformedEntriesSkipped", func(t *testing.T) {
		var info InfoArchival
		if err := info.AddCRL([]byte("not a crl")); err != nil {
			t.Fatalf("AddCRL: %v", err)
		}
		if err := info.AddOCSP([]byte("not an ocsp response")); err != nil {
			t.Fatalf("AddOCSP: %v", err)
		}
		if err := info.AddCRL(newCRL(t, key, issuer, 99)); err != nil {
			t.Fatalf("AddCRL: %v", err)
		}

		if !info.IsRevoked(certWithSerial(99)) {
			t.Error("IsRevoked = false, want malformed entries skipped and later CRL consulted")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		var info InfoArchival
		if info.IsRevoked(certWithSerial(1)) {
			t.Error("IsRevoked = true with no revocation data embedded")
		}
	})
}
