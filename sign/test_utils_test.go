package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"testing"

	"github.com/digitorus/pdf"

	"github.com/openbackendHQ/pdfseal/internal/testpki"
)

// loadCertificateAndKey issues a throwaway signing certificate backed by an
// in-memory CA hierarchy.
func loadCertificateAndKey(t *testing.T) (crypto.Signer, *x509.Certificate, [][]*x509.Certificate) {
	t.Helper()
	return loadCertificateAndKeyProfile(t, testpki.ECDSA_P256)
}

func loadCertificateAndKeyProfile(t *testing.T, profile testpki.KeyProfile) (crypto.Signer, *x509.Certificate, [][]*x509.Certificate) {
	t.Helper()

	pki := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{
		Profile:         profile,
		IntermediateCAs: 1,
	})
	t.Cleanup(pki.Close)

	key, leaf := pki.IssueLeaf("Unit Signer")
	chain := append([]*x509.Certificate{leaf}, pki.Chain()...)

	return key, leaf, [][]*x509.Certificate{chain}
}

// signTestDocument runs a full signing pass over the document bytes and
// returns the signed output.
func signTestDocument(t *testing.T, docBytes []byte, data SignData) []byte {
	t.Helper()

	rdr, err := pdf.NewReader(bytes.NewReader(docBytes), int64(len(docBytes)))
	if err != nil {
		t.Fatalf("parse input document: %v", err)
	}

	var out bytes.Buffer
	if err := Sign(bytes.NewReader(docBytes), &out, rdr, int64(len(docBytes)), data); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return out.Bytes()
}

// reopen parses produced output again, failing the test when the result is
// not a readable document.
func reopen(t *testing.T, b []byte) *pdf.Reader {
	t.Helper()

	rdr, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("parse output document: %v", err)
	}
	return rdr
}
