// Package keys loads signing key material from PEM files and PKCS#12
// bundles.
package keys

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrNoPEMData is returned when a file holds no usable PEM block.
	ErrNoPEMData = errors.New("keys: no PEM data found")

	// ErrUnsupportedKey is returned for private keys that cannot be used for
	// signing.
	ErrUnsupportedKey = errors.New("keys: unsupported private key")
)

// Material bundles a signer's key material: the private key, its certificate
// and the verified certificate chains. The fields map directly onto a signer
// input.
type Material struct {
	Signer            crypto.Signer
	Certificate       *x509.Certificate
	CertificateChains [][]*x509.Certificate
}

// LoadPEM loads a PEM certificate and private key, with an optional PEM
// chain file holding the intermediate and root certificates. When chainPath
// is empty no chains are built.
func LoadPEM(certPath, keyPath, chainPath string) (*Material, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	certBlock, _ := pem.Decode(certData)
	if certBlock == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPEMData, certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyPath, err)
	}

	material := &Material{Signer: signer, Certificate: cert}
	if chainPath != "" {
		chain, err := readChainFile(chainPath)
		if err != nil {
			return nil, err
		}
		material.CertificateChains, err = verifyChain(cert, chain)
		if err != nil {
			return nil, err
		}
	}
	return material, nil
}

// LoadPKCS12 loads a signer from a PKCS#12 bundle. CA certificates bundled
// in the file become the chain.
func LoadPKCS12(path, password string) (*Material, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PKCS#12 bundle: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot sign", ErrUnsupportedKey, key)
	}

	material := &Material{Signer: signer, Certificate: cert}
	if len(caCerts) > 0 {
		material.CertificateChains, err = verifyChain(cert, caCerts)
		if err != nil {
			return nil, err
		}
	}
	return material, nil
}

// ParsePrivateKey decodes one PEM block and parses it as a PKCS#1, PKCS#8 or
// EC private key.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMData
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: %T cannot sign", ErrUnsupportedKey, key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: PEM block type %q", ErrUnsupportedKey, block.Type)
	}
}

// readChainFile parses every CERTIFICATE block in the file.
func readChainFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chain []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chain certificate: %w", err)
		}
		chain = append(chain, cert)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPEMData, path)
	}
	return chain, nil
}

// verifyChain verifies the leaf through the supplied certificates.
// Self-signed certificates act as trust roots, the rest as intermediates;
// without a self-signed certificate the system roots apply.
func verifyChain(cert *x509.Certificate, chain []*x509.Certificate) ([][]*x509.Certificate, error) {
	roots := x509.NewCertPool()
	intermediates := x509.NewCertPool()
	hasRoot := false
	for _, chainCert := range chain {
		if isSelfSigned(chainCert) {
			roots.AddCert(chainCert)
			hasRoot = true
		} else {
			intermediates.AddCert(chainCert)
		}
	}

	opts := x509.VerifyOptions{
		Intermediates: intermediates,
		CurrentTime:   cert.NotBefore,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if hasRoot {
		opts.Roots = roots
	}

	chains, err := cert.Verify(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to verify certificate chain: %w", err)
	}
	return chains, nil
}

func isSelfSigned(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer)
}
