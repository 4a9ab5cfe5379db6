package sign

import (
	"crypto"
	"crypto/x509"
	"errors"
	"io"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
	"github.com/openbackendHQ/pdfseal/revocation"
)

var (
	// ErrReservationTooSmall is returned when the produced signature container
	// does not fit the reserved placeholder. The reservation is sized from the
	// certificate chain and revocation data up front, so this is a sizing
	// failure, not a condition to retry.
	ErrReservationTooSmall = errors.New("sign: signature exceeds reserved placeholder space")

	// ErrPlaceholderNotFound is returned when the serialized buffer does not
	// carry the placeholder bytes at their recorded offsets.
	ErrPlaceholderNotFound = errors.New("sign: signature placeholder not found in output")

	// ErrPageNotFound is returned when a field references a page object that
	// does not resolve to a page dictionary.
	ErrPageNotFound = errors.New("sign: page not found")

	// ErrImageDecode is returned when signature image bytes are not a
	// supported raster format.
	ErrImageDecode = errors.New("sign: cannot decode image")

	// ErrSigningKeyInvalid is returned when the signer key material does not
	// match the certificate or is otherwise unusable.
	ErrSigningKeyInvalid = errors.New("sign: invalid signing key material")

	// ErrUnsupportedDigest is returned for digest algorithms without a
	// registered OID.
	ErrUnsupportedDigest = errors.New("sign: unsupported digest algorithm")

	// ErrFieldNotFound is returned when the requested signature field cannot
	// be resolved in the document.
	ErrFieldNotFound = errors.New("sign: signature field not found")
)

type CatalogData struct {
	RootString string
}

type TSA struct {
	URL      string
	Username string
	Password string
}

type RevocationFunction func(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error

// FieldData identifies the existing signature field one signing pass fills:
// the field object that receives the /V reference and the page carrying its
// widget.
type FieldData struct {
	// ObjectID is the field dictionary's object number. When zero, the field
	// is looked up by Name instead.
	ObjectID uint32

	Name string

	// Rect is the widget rectangle the visual signature is drawn into.
	Rect [4]float64

	// PageID is the object number of the page holding the widget. When zero,
	// the first document page is used.
	PageID uint32

	// Image holds raster image bytes stamped onto the page. Empty means no
	// visual stamp.
	Image []byte

	// ImageKey identifies the image across signing passes of one session;
	// passes sharing a key reuse the embedded image object instead of
	// embedding the payload again. Empty falls back to the field name.
	ImageKey string
}

type SignData struct {
	Signature          SignDataSignature
	Signer             crypto.Signer
	DigestAlgorithm    crypto.Hash
	Certificate        *x509.Certificate
	CertificateChains  [][]*x509.Certificate
	TSA                TSA
	RevocationData     revocation.InfoArchival
	RevocationFunction RevocationFunction

	// Field selects the signature field to sign.
	Field FieldData

	// ImageCache maps image keys to embedded image object numbers. The same
	// map is handed to every signing pass of a session, so a signer's image
	// is stored once per document no matter how many fields it stamps.
	ImageCache map[string]uint32

	// SignatureSizeOverride fixes the reserved signature size in bytes
	// instead of deriving it from the public key.
	SignatureSizeOverride uint32

	// CompressLevel determines the zlib level for new stream objects. The
	// zero value selects zlib.DefaultCompression.
	CompressLevel int

	objectId uint32
}

//go:generate stringer -type=CertType
type CertType uint

const (
	CertificationSignature CertType = iota + 1
	ApprovalSignature
	UsageRightsSignature
)

//go:generate stringer -type=DocMDPPerm
type DocMDPPerm uint

const (
	DoNotAllowAnyChangesPerms DocMDPPerm = iota + 1
	AllowFillingExistingFormFieldsAndSignaturesPerms
	AllowFillingExistingFormFieldsAndSignaturesAndCRUDAnnotationsPerms
)

type SignDataSignature struct {
	CertType   CertType
	DocMDPPerm DocMDPPerm
	Info       SignDataSignatureInfo
}

type SignDataSignatureInfo struct {
	Name        string
	Location    string
	Reason      string
	ContactInfo string
	Date        time.Time
}

type xrefEntry struct {
	ID     uint32
	Offset int64
}

type SignContext struct {
	InputFile    io.ReadSeeker
	OutputFile   io.Writer
	OutputBuffer *filebuffer.Buffer
	SignData     SignData
	CatalogData  CatalogData
	PDFReader    *pdf.Reader

	NewXrefStart           int64
	ByteRangeValues        []int64
	SignatureMaxLength     uint32
	SignatureMaxLengthBase uint32

	// Placeholder offsets recorded when the signature object is written, so
	// patching never has to scan the serialized buffer for the placeholder.
	byteRangeOffset int64
	contentsOffset  int64

	lastXrefID         uint32
	newXrefEntries     []xrefEntry
	updatedXrefEntries []xrefEntry

	// CompressLevel determines the zlib level for new stream objects. The
	// zero value selects zlib.DefaultCompression.
	CompressLevel int
}
