package sign

import (
	"compress/zlib"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/mattetti/filebuffer"
)

// SignFile signs the form field selected by sign_data.Field in the input
// document and writes the signed copy to output.
func SignFile(input string, output string, sign_data SignData) error {
	input_file, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = input_file.Close()
	}()

	output_file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		_ = output_file.Close()
	}()

	finfo, err := input_file.Stat()
	if err != nil {
		return err
	}
	size := finfo.Size()

	rdr, err := pdf.NewReader(input_file, size)
	if err != nil {
		return err
	}

	return Sign(input_file, output_file, rdr, size, sign_data)
}

// Sign appends one incremental update to the document read by rdr, filling
// the selected signature field with a detached signature container, and
// writes the whole signed document to output.
func Sign(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, sign_data SignData) error {
	context := SignContext{
		PDFReader:              rdr,
		InputFile:              input,
		OutputFile:             output,
		SignData:               sign_data,
		CompressLevel:          sign_data.CompressLevel,
		SignatureMaxLengthBase: uint32(hex.EncodedLen(512)),
	}

	return context.SignPDF()
}

func (context *SignContext) SignPDF() error {
	// set defaults
	if context.SignData.Signature.CertType == 0 {
		context.SignData.Signature.CertType = ApprovalSignature
	}
	if context.SignData.Signature.DocMDPPerm == 0 {
		context.SignData.Signature.DocMDPPerm = DoNotAllowAnyChangesPerms
	}
	if !context.SignData.DigestAlgorithm.Available() {
		context.SignData.DigestAlgorithm = crypto.SHA256
	}
	if context.SignData.Signature.Info.Date.IsZero() {
		context.SignData.Signature.Info.Date = time.Now()
	}
	// The zero value selects the default zlib level.
	if context.CompressLevel == 0 {
		context.CompressLevel = zlib.DefaultCompression
	}

	if getOIDFromHashAlgorithm(context.SignData.DigestAlgorithm) == nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedDigest, context.SignData.DigestAlgorithm)
	}

	// Reset state that accumulates during signing.
	context.newXrefEntries = nil
	context.updatedXrefEntries = nil
	context.lastXrefID = 0
	context.ByteRangeValues = nil
	context.NewXrefStart = 0
	context.byteRangeOffset = 0
	context.contentsOffset = 0
	context.CatalogData = CatalogData{}

	context.OutputBuffer = filebuffer.New([]byte{})

	// Copy old file into new buffer.
	_, err := context.InputFile.Seek(0, 0)
	if err != nil {
		return err
	}
	if _, err := io.Copy(context.OutputBuffer, context.InputFile); err != nil {
		return err
	}

	// File always needs an empty line after %%EOF.
	if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
		return err
	}

	// The trailer and xref stream keep referencing the original root object;
	// promoteCatalog rewrites it in place when a certification signature
	// needs a permission entry.
	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = strconv.Itoa(int(rootPtr.GetID())) + " " + strconv.Itoa(int(rootPtr.GetGen())) + " R"

	// Base size for signature.
	context.SignatureMaxLength = context.SignatureMaxLengthBase

	if context.SignData.Certificate == nil {
		return fmt.Errorf("%w: certificate is required", ErrSigningKeyInvalid)
	}
	if context.SignData.Signer == nil {
		return fmt.Errorf("%w: signer is required", ErrSigningKeyInvalid)
	}
	if err := ValidateSignerCertificateMatch(context.SignData.Signer, context.SignData.Certificate); err != nil {
		return fmt.Errorf("%w: %v", ErrSigningKeyInvalid, err)
	}

	var sigSize int
	if context.SignData.SignatureSizeOverride > 0 {
		sigSize = int(context.SignData.SignatureSizeOverride)
	} else {
		var err error
		sigSize, err = PublicKeySignatureSize(context.SignData.Certificate.PublicKey)
		if err != nil {
			sigSize = DefaultSignatureSize
		}
	}
	context.SignatureMaxLength += uint32(hex.EncodedLen(sigSize))

	// Add size of digest algorithm twice (for file digist and signing certificate attribute)
	context.SignatureMaxLength += uint32(hex.EncodedLen(context.SignData.DigestAlgorithm.Size() * 2))

	// Add size for my certificate.
	degenerated, err := pkcs7.DegenerateCertificate(context.SignData.Certificate.Raw)
	if err != nil {
		return fmt.Errorf("failed to degenerate certificate: %w", err)
	}

	context.SignatureMaxLength += uint32(hex.EncodedLen(len(degenerated)))

	// Add size of the raw issuer which is added by AddSignerChain
	context.SignatureMaxLength += uint32(hex.EncodedLen(len(context.SignData.Certificate.RawIssuer)))

	// Add size for certificate chain.
	var certificate_chain []*x509.Certificate
	if len(context.SignData.CertificateChains) > 0 && len(context.SignData.CertificateChains[0]) > 1 {
		certificate_chain = context.SignData.CertificateChains[0][1:]
	}

	if len(certificate_chain) > 0 {
		for _, cert := range certificate_chain {
			degenerated, err := pkcs7.DegenerateCertificate(cert.Raw)
			if err != nil {
				return fmt.Errorf("failed to degenerate certificate in chain: %w", err)
			}

			context.SignatureMaxLength += uint32(hex.EncodedLen(len(degenerated)))
		}
	}

	// Fetch revocation data before adding signature placeholder.
	// Revocation data can be quite large and we need to create enough space in the placeholder.
	if err := context.fetchRevocationData(); err != nil {
		return fmt.Errorf("failed to fetch revocation data: %w", err)
	}

	// Add estimated size for TSA.
	// We can't kow actual size of TSA until after signing.
	//
	// Different TSA servers provide different response sizes, we
	// might need to make this configurable or detect and store.
	if context.SignData.TSA.URL != "" {
		context.SignatureMaxLength += uint32(hex.EncodedLen(9000))
	}

	// Resolve the target field before touching the buffer.
	if err := context.resolveField(); err != nil {
		return err
	}

	// Stamp the signature image onto the page holding the widget.
	if context.hasImage() {
		if context.SignData.Field.PageID == 0 {
			pageID, err := context.firstPageID()
			if err != nil {
				return err
			}
			context.SignData.Field.PageID = pageID
		}

		imageID, _, err := context.embedImage()
		if err != nil {
			return fmt.Errorf("failed to embed signature image: %w", err)
		}

		drawContentID, err := context.addObject(context.createImageDrawContent(imageResourceName(imageID)))
		if err != nil {
			return fmt.Errorf("failed to add draw content object: %w", err)
		}

		if err := context.promotePage(context.SignData.Field.PageID, drawContentID, imageID); err != nil {
			return fmt.Errorf("failed to update page: %w", err)
		}
	}

	// Write the signature object and record where its placeholder landed.
	if err := context.writeSignaturePlaceholder(); err != nil {
		return err
	}

	// Point the field's /V at the new signature object.
	if err := context.updateSignatureField(context.SignData.Field.ObjectID, context.SignData.objectId); err != nil {
		return fmt.Errorf("failed to fill signature field: %w", err)
	}

	// Certification signatures also lock the document through the catalog's
	// permission dictionary.
	if err := context.promoteCatalog(context.SignData.objectId); err != nil {
		return fmt.Errorf("failed to update catalog: %w", err)
	}

	// Write xref table
	if err := context.writeXref(); err != nil {
		return fmt.Errorf("failed to write xref: %w", err)
	}

	// Write trailer
	if err := context.writeTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	// Update byte range
	if err := context.updateByteRange(); err != nil {
		return fmt.Errorf("failed to update byte range: %w", err)
	}

	// Replace signature
	if err := context.replaceSignature(); err != nil {
		return fmt.Errorf("failed to replace signature: %w", err)
	}

	// Write final output
	if _, err := context.OutputBuffer.Seek(0, 0); err != nil {
		return err
	}
	file_content := context.OutputBuffer.Buff.Bytes()

	if _, err := context.OutputFile.Write(file_content); err != nil {
		return err
	}

	return nil
}
