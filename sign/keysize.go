package sign

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// DefaultSignatureSize is the reservation fallback for key types the sizing
// switch does not recognize.
const DefaultSignatureSize = 8192

var (
	ErrNilSigner      = errors.New("sign: signer is nil")
	ErrNilPublicKey   = errors.New("sign: public key is nil")
	ErrNilCertificate = errors.New("sign: certificate is nil")
	ErrUnsupportedKey = errors.New("sign: unsupported key type")
	ErrKeyMismatch    = errors.New("sign: signer public key does not match certificate")
)

// SignatureSize returns the maximum size in bytes of a signature produced by
// the signer's key. The certificate's SignatureAlgorithm is useless here, it
// describes the CA's key, not this one.
func SignatureSize(signer crypto.Signer) (int, error) {
	if signer == nil {
		return 0, ErrNilSigner
	}
	pub := signer.Public()
	if pub == nil {
		return 0, ErrNilPublicKey
	}
	return PublicKeySignatureSize(pub)
}

// PublicKeySignatureSize returns the maximum signature size for a public key:
// the modulus size for RSA, the DER-encoded coordinate pair for ECDSA and the
// fixed signature size for Ed25519.
func PublicKeySignatureSize(pub crypto.PublicKey) (int, error) {
	if pub == nil {
		return 0, ErrNilPublicKey
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		if key.N == nil {
			return 0, fmt.Errorf("%w: RSA key without modulus", ErrUnsupportedKey)
		}
		return key.Size(), nil

	case *ecdsa.PublicKey:
		if key.Curve == nil {
			return 0, fmt.Errorf("%w: ECDSA key without curve", ErrUnsupportedKey)
		}
		// DER SEQUENCE of two INTEGERs (RFC 3279 2.2.3): two coordinates
		// plus tag, length and sign-padding bytes.
		coordSize := (key.Curve.Params().BitSize + 7) / 8
		return 2*coordSize + 9, nil

	case ed25519.PublicKey:
		return ed25519.SignatureSize, nil

	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// ValidateSignerCertificateMatch checks that the signer holds the private
// key belonging to the certificate.
func ValidateSignerCertificateMatch(signer crypto.Signer, cert *x509.Certificate) error {
	if signer == nil {
		return ErrNilSigner
	}
	if cert == nil {
		return ErrNilCertificate
	}

	pub := signer.Public()
	if pub == nil {
		return ErrNilPublicKey
	}

	signerDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("failed to marshal signer public key: %w", err)
	}
	certDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate public key: %w", err)
	}

	if !bytes.Equal(signerDER, certDER) {
		return ErrKeyMismatch
	}
	return nil
}
