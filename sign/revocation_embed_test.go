package sign

import (
	"testing"

	"github.com/openbackendHQ/pdfseal/internal/testpki"
	"github.com/openbackendHQ/pdfseal/revocation"
)

func TestDefaultEmbedRevocationStatusFunction(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	t.Cleanup(pki.Close)

	issuer := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]
	_, cert := pki.IssueLeaf("Revocation Probe")

	var info revocation.InfoArchival
	if err := DefaultEmbedRevocationStatusFunction(cert, issuer, &info); err != nil {
		t.Fatalf("failed to embed revocation status: %v", err)
	}

	// The certificate carries both distribution points and the default
	// embeds both sources.
	if len(info.OCSP) != 1 {
		t.Errorf("got %d OCSP responses, want 1", len(info.OCSP))
	}
	if len(info.CRL) != 1 {
		t.Errorf("got %d CRLs, want 1", len(info.CRL))
	}
}

func TestRevocationFunctionCache(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	t.Cleanup(pki.Close)

	issuer := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]
	_, cert := pki.IssueLeaf("Cached Probe")

	fn := NewRevocationFunction(RevocationOptions{
		EmbedOCSP: true,
		EmbedCRL:  true,
		Cache:     NewMemoryCache(),
	})

	for pass := 1; pass <= 2; pass++ {
		var info revocation.InfoArchival
		if err := fn(cert, issuer, &info); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if len(info.OCSP) != 1 || len(info.CRL) != 1 {
			t.Fatalf("pass %d embedded OCSP=%d CRL=%d, want 1 and 1", pass, len(info.OCSP), len(info.CRL))
		}
	}

	// The second pass is served from the cache.
	if pki.Requests != 1 {
		t.Errorf("CRL endpoint was hit %d times, want 1", pki.Requests)
	}
	if pki.OCSPRequests != 1 {
		t.Errorf("OCSP endpoint was hit %d times, want 1", pki.OCSPRequests)
	}
}
