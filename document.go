// Package pdfseal signs PDF form signature fields with detached PKCS#7
// signatures, one incremental update per applied signature.
//
// A Document is a single-use signing session over one PDF. SignAll walks the
// form's signature fields, matches every empty field against the supplied
// signer inputs by field name or embedded JSON field key, optionally stamps
// the signer's image onto the page, and fills the field. After each applied
// signature the session reloads its own output, so every signature builds on
// the previous revision and earlier signatures stay byte-for-byte intact.
//
// Basic usage:
//
//	doc, err := pdfseal.OpenFile("contract.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := doc.SignAll(inputs, output)
package pdfseal

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"log"
	"os"

	pdflib "github.com/digitorus/pdf"
)

// DefaultMaxPasses bounds the field scan loop of one SignAll run.
const DefaultMaxPasses = 10000

// Document is a signing session over one PDF. The session owns its document
// bytes and replaces them wholesale after every applied signature; the only
// state surviving those reloads is the image cache.
type Document struct {
	current []byte
	rdr     *pdflib.Reader
	name    string

	// imageCache maps a signer's image key to the object number of the
	// embedded image, so a signer stamping several fields stores the image
	// payload once per session.
	imageCache map[string]uint32

	logger        *log.Logger
	maxPasses     int
	compressLevel int
}

// Open initializes a signing session from an io.ReaderAt (e.g. an open file
// or memory buffer). The size parameter must be the total size of the PDF in
// bytes.
func Open(reader io.ReaderAt, size int64) (*Document, error) {
	content, err := io.ReadAll(io.NewSectionReader(reader, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return OpenBytes(content)
}

// OpenBytes initializes a signing session from PDF bytes already in memory.
// The session takes ownership of content; the caller must not modify it.
func OpenBytes(content []byte) (*Document, error) {
	doc := &Document{
		imageCache:    make(map[string]uint32),
		logger:        log.Default(),
		maxPasses:     DefaultMaxPasses,
		compressLevel: zlib.DefaultCompression,
	}
	if err := doc.reload(content); err != nil {
		return nil, err
	}
	return doc, nil
}

// OpenFile is a convenience method to initialize a signing session from a
// file on disk.
func OpenFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	doc, err := OpenBytes(content)
	if err != nil {
		return nil, err
	}
	doc.name = path
	return doc, nil
}

// reload replaces the session state with freshly produced document bytes.
// The image cache survives on purpose: embedded image objects stay valid
// across incremental updates.
func (d *Document) reload(content []byte) error {
	rdr, err := pdflib.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	d.current = content
	d.rdr = rdr
	return nil
}

// SetMaxPasses bounds the number of field scan steps one SignAll run may
// take before stopping with the most recent valid output. The default is
// DefaultMaxPasses; values below one are ignored.
func (d *Document) SetMaxPasses(n int) {
	if n > 0 {
		d.maxPasses = n
	}
}

// SetLogger routes session diagnostics (skipped fields, the pass ceiling
// warning) to the given logger. The default is log.Default().
func (d *Document) SetLogger(logger *log.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetCompression configures the zlib compression level for new stream
// objects added to the PDF, zlib.BestSpeed through zlib.BestCompression. The
// default is zlib.DefaultCompression.
func (d *Document) SetCompression(level int) {
	d.compressLevel = level
}

// SetName sets the display name used in session diagnostics. OpenFile sets
// it to the file path.
func (d *Document) SetName(name string) {
	d.name = name
}

// Reader returns the low-level PDF reader over the current session bytes.
// The reader is replaced after every applied signature.
func (d *Document) Reader() *pdflib.Reader {
	return d.rdr
}

// Bytes returns the current session bytes: the opened document until a
// signature or fill is applied, the latest produced revision afterwards.
func (d *Document) Bytes() []byte {
	return d.current
}
