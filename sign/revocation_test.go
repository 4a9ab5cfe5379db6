package sign

import (
	"bytes"
	"crypto/x509"
	"testing"

	"github.com/openbackendHQ/pdfseal/internal/testpki"
	"github.com/openbackendHQ/pdfseal/revocation"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()

	if _, ok := cache.Get("missing"); ok {
		t.Error("empty cache returned a hit")
	}

	cache.Put("key", []byte("payload"))
	data, ok := cache.Get("key")
	if !ok || !bytes.Equal(data, []byte("payload")) {
		t.Errorf("got %q, %v after Put", data, ok)
	}
}

func TestNewRevocationFunction(t *testing.T) {
	newLeaf := func(st *testing.T) (*testpki.TestPKI, *x509.Certificate, *x509.Certificate) {
		pki := testpki.NewTestPKI(st)
		pki.StartCRLServer()
		st.Cleanup(pki.Close)

		issuer := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]
		_, cert := pki.IssueLeaf("Options Probe")
		return pki, cert, issuer
	}

	t.Run("StopOnSuccess", func(st *testing.T) {
		pki, cert, issuer := newLeaf(st)

		fn := NewRevocationFunction(RevocationOptions{
			EmbedOCSP:     true,
			EmbedCRL:      true,
			StopOnSuccess: true,
		})

		var info revocation.InfoArchival
		if err := fn(cert, issuer, &info); err != nil {
			st.Fatalf("failed to embed revocation status: %v", err)
		}
		if len(info.OCSP) != 1 || len(info.CRL) != 0 {
			st.Errorf("embedded OCSP=%d CRL=%d, want OCSP only", len(info.OCSP), len(info.CRL))
		}
		if pki.Requests != 0 {
			st.Errorf("CRL endpoint was hit %d times after an OCSP success", pki.Requests)
		}
	})

	t.Run("PreferCRL", func(st *testing.T) {
		pki, cert, issuer := newLeaf(st)

		fn := NewRevocationFunction(RevocationOptions{
			EmbedOCSP:     true,
			EmbedCRL:      true,
			PreferCRL:     true,
			StopOnSuccess: true,
		})

		var info revocation.InfoArchival
		if err := fn(cert, issuer, &info); err != nil {
			st.Fatalf("failed to embed revocation status: %v", err)
		}
		if len(info.CRL) != 1 || len(info.OCSP) != 0 {
			st.Errorf("embedded OCSP=%d CRL=%d, want CRL only", len(info.OCSP), len(info.CRL))
		}
		if pki.OCSPRequests != 0 {
			st.Errorf("OCSP endpoint was hit %d times after a CRL success", pki.OCSPRequests)
		}
	})

	t.Run("OCSPFailureFallsBackToCRL", func(st *testing.T) {
		pki, cert, issuer := newLeaf(st)
		pki.FailOCSP = true

		fn := NewRevocationFunction(RevocationOptions{
			EmbedOCSP: true,
			EmbedCRL:  true,
		})

		var info revocation.InfoArchival
		if err := fn(cert, issuer, &info); err != nil {
			st.Fatalf("one embedded source should carry the call, got: %v", err)
		}
		if len(info.CRL) != 1 || len(info.OCSP) != 0 {
			st.Errorf("embedded OCSP=%d CRL=%d, want the CRL fallback", len(info.OCSP), len(info.CRL))
		}
	})

	t.Run("NoSources", func(st *testing.T) {
		fn := NewRevocationFunction(RevocationOptions{
			EmbedOCSP: true,
			EmbedCRL:  true,
		})

		// A certificate without distribution points has nothing to embed,
		// which is not an error.
		var info revocation.InfoArchival
		if err := fn(&x509.Certificate{}, &x509.Certificate{}, &info); err != nil {
			st.Fatalf("got %v for a certificate without revocation sources", err)
		}
		if len(info.OCSP) != 0 || len(info.CRL) != 0 {
			st.Errorf("embedded OCSP=%d CRL=%d from a bare certificate", len(info.OCSP), len(info.CRL))
		}
	})
}
