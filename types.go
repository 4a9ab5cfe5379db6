package pdfseal

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openbackendHQ/pdfseal/sign"
)

// SignerInput carries one signer's matching key, display identity, stamp
// image and key material for a SignAll run. One input may sign any number of
// matching fields over successive passes; a field with no matching input is
// skipped, not failed.
type SignerInput struct {
	// ID matches fields whose name equals it, or whose name is a JSON field
	// key carrying it as userId.
	ID string

	// GroupID matches the boxId of JSON field keys in SignAllByGroup runs.
	GroupID string

	// Name and Email are written into the signature dictionary as /Name and
	// /ContactInfo.
	Name  string
	Email string

	// Image holds raster image bytes stamped onto the page at the field's
	// widget rectangle. Empty means no visual stamp.
	Image []byte

	Signer            crypto.Signer
	Certificate       *x509.Certificate
	CertificateChains [][]*x509.Certificate

	// Reason and Location are optional signature dictionary metadata.
	Reason   string
	Location string

	// DigestAlgorithm defaults to crypto.SHA256 when zero.
	DigestAlgorithm crypto.Hash

	// TSA configures optional RFC 3161 timestamping for the signatures this
	// input produces. No timestamping happens while the URL is empty.
	TSA sign.TSA

	// RevocationFunction optionally embeds revocation material for the
	// signing chain into the signature container.
	RevocationFunction sign.RevocationFunction
}

// FieldKey is the JSON envelope some form generators write into signature
// field names to identify the signer a field belongs to.
type FieldKey struct {
	UserID string `json:"userId"`
	BoxID  string `json:"boxId"`
}

// ParseFieldKey parses a field name of the envelope form
// {"userId":…,"boxId":…}. It reports false for plain field names.
func ParseFieldKey(name string) (FieldKey, bool) {
	trimmed := strings.TrimSpace(name)
	if !strings.HasPrefix(trimmed, "{") {
		return FieldKey{}, false
	}

	var key FieldKey
	if err := json.Unmarshal([]byte(trimmed), &key); err != nil {
		return FieldKey{}, false
	}
	return key, true
}

// Result lists what one SignAll run produced: the applied signatures in
// order, and one error per field whose signing cycle failed.
type Result struct {
	Signatures  []SignatureInfo
	FieldErrors []*FieldError
}

// Err joins the per-field errors into one error, or returns nil when every
// matched field signed cleanly.
func (r *Result) Err() error {
	if len(r.FieldErrors) == 0 {
		return nil
	}
	errs := make([]error, len(r.FieldErrors))
	for i, fieldErr := range r.FieldErrors {
		errs[i] = fieldErr
	}
	return errors.Join(errs...)
}

// SignatureInfo describes one applied signature.
type SignatureInfo struct {
	// Field is the full field name, ObjectID the field dictionary's object
	// number.
	Field    string
	ObjectID uint32

	// Signer is the matching input's ID, SignerName its display name.
	Signer     string
	SignerName string

	SigningTime time.Time

	// ByteRange is the signature's /ByteRange as written into the document.
	ByteRange [4]int64
}

// FieldError records a field whose signing cycle failed. The field is
// remembered by object number and skipped for the rest of the run, keeping
// the failure per-field rather than fatal.
type FieldError struct {
	Field    string
	ObjectID uint32
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q (object %d): %v", e.Field, e.ObjectID, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
