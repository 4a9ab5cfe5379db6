package sign

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/openbackendHQ/pdfseal/forms"
)

// FillFile fills text form fields in the input document and writes the
// result to output. Keys of fields are matched case-insensitively against
// fully qualified field names.
func FillFile(input string, output string, fields map[string]string) error {
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

	return Fill(input_file, output_file, rdr, size, fields)
}

// Fill appends one incremental update that sets the value of every matched
// text field and regenerates its appearance stream. Unmatched fields are left
// alone; a document without any match is passed through unchanged. Failures
// on individual fields do not stop the pass, they are joined into the
// returned error.
func Fill(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, fields map[string]string) error {
	context := SignContext{
		PDFReader:  rdr,
		InputFile:  input,
		OutputFile: output,
	}

	return context.FillPDF(fields)
}

func (context *SignContext) FillPDF(fields map[string]string) error {
	if context.CompressLevel == 0 {
		context.CompressLevel = zlib.DefaultCompression
	}

	context.newXrefEntries = nil
	context.updatedXrefEntries = nil
	context.lastXrefID = 0
	context.NewXrefStart = 0
	context.CatalogData = CatalogData{}

	context.OutputBuffer = filebuffer.New([]byte{})

	if _, err := context.InputFile.Seek(0, 0); err != nil {
		return err
	}
	if _, err := io.Copy(context.OutputBuffer, context.InputFile); err != nil {
		return err
	}
	if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
		return err
	}

	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = strconv.Itoa(int(rootPtr.GetID())) + " " + strconv.Itoa(int(rootPtr.GetGen())) + " R"

	// Normalize lookup keys once, field names match case-insensitively.
	values := make(map[string]string, len(fields))
	for name, value := range fields {
		values[strings.ToLower(name)] = value
	}

	formFields, err := forms.Extract(context.PDFReader)
	if errors.Is(err, forms.ErrNoAcroForm) {
		formFields = nil
	} else if err != nil {
		return fmt.Errorf("extract form fields: %w", err)
	}

	var errs []error
	matched := 0
	for _, field := range formFields {
		if field.Type != forms.TypeText {
			continue
		}
		value, ok := values[strings.ToLower(field.Name)]
		if !ok {
			continue
		}
		if err := context.fillTextField(field, value); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", field.Name, err))
			continue
		}
		matched++
	}

	// Nothing changed, hand the input through untouched.
	if matched == 0 {
		if _, err := context.InputFile.Seek(0, 0); err != nil {
			return err
		}
		if _, err := io.Copy(context.OutputFile, context.InputFile); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	if err := context.writeXref(); err != nil {
		return fmt.Errorf("failed to write xref: %w", err)
	}
	if err := context.writeTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	if _, err := context.OutputBuffer.Seek(0, 0); err != nil {
		return err
	}
	if _, err := context.OutputFile.Write(context.OutputBuffer.Buff.Bytes()); err != nil {
		return err
	}

	return errors.Join(errs...)
}

// fillTextField rewrites one text field with the new value and a regenerated
// appearance stream. An existing single-stream /AP /N is rewritten in place,
// anything else gets a fresh form XObject.
func (context *SignContext) fillTextField(field forms.FormField, value string) error {
	fieldVal, err := context.findFieldByID(field.ObjectID)
	if err != nil {
		return err
	}

	apValue := fieldVal.Key("AP").Key("N")
	apReused := apValue.Kind() == pdf.Stream

	var apID uint32
	if apReused {
		apPtr := apValue.GetPtr()
		apID = apPtr.GetID()

		var content bytes.Buffer
		if reader := apValue.Reader(); reader != nil {
			if _, err := io.Copy(&content, reader); err != nil {
				return fmt.Errorf("read appearance stream: %w", err)
			}
		}

		regenerated := forms.RegenerateAppearance(content.Bytes(), field.DA, field.Rect, value)
		if err := context.updateObject(apID, context.rebuildAppearanceStream(apValue, regenerated)); err != nil {
			return fmt.Errorf("failed to update appearance stream %d: %w", apID, err)
		}
	} else {
		regenerated := forms.RegenerateAppearance(nil, field.DA, field.Rect, value)
		apID, err = context.addObject(context.newAppearanceStream(field.Rect, regenerated))
		if err != nil {
			return fmt.Errorf("failed to add appearance stream: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("<<")
	for _, key := range fieldVal.Keys() {
		if key == "V" {
			continue
		}
		if key == "AP" && !apReused {
			continue
		}
		buf.WriteString(" " + pdfName(key) + " ")
		serializeValue(&buf, fieldVal.Key(key), field.ObjectID)
	}
	buf.WriteString(" /V " + pdfString(value))
	if !apReused {
		fmt.Fprintf(&buf, " /AP << /N %d 0 R >>", apID)
	}
	buf.WriteString(" >>")

	if err := context.updateObject(field.ObjectID, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to update field object %d: %w", field.ObjectID, err)
	}

	return nil
}

// rebuildAppearanceStream re-frames an existing appearance stream object with
// new content, carrying over every dictionary entry except the encoding ones.
func (context *SignContext) rebuildAppearanceStream(src pdf.Value, content []byte) []byte {
	encoded := context.encodeStream(content)

	var buf bytes.Buffer
	buf.WriteString("<<")
	srcPtr := src.GetPtr()
	srcID := srcPtr.GetID()
	for _, key := range src.Keys() {
		switch key {
		case "Length", "Filter", "DecodeParms":
			continue
		}
		buf.WriteString(" " + pdfName(key) + " ")
		serializeValue(&buf, src.Key(key), srcID)
	}
	fmt.Fprintf(&buf, " /Filter /FlateDecode /Length %d >>\nstream\n", len(encoded))
	buf.Write(encoded)
	buf.WriteString("\nendstream")

	return buf.Bytes()
}

// newAppearanceStream builds a form XObject sized to the field rectangle. The
// form's resources reference the AcroForm default resources so the /DA font
// resolves inside the stream.
func (context *SignContext) newAppearanceStream(rect [4]float64, content []byte) []byte {
	encoded := context.encodeStream(content)

	width := math.Abs(rect[2] - rect[0])
	height := math.Abs(rect[3] - rect[1])

	var buf bytes.Buffer
	buf.WriteString("<< /Type /XObject /Subtype /Form /FormType 1")
	fmt.Fprintf(&buf, " /BBox [0 0 %.2f %.2f]", width, height)

	acroForm := context.PDFReader.Trailer().Key("Root").Key("AcroForm")
	if dr := acroForm.Key("DR"); !dr.IsNull() {
		acroFormPtr := acroForm.GetPtr()
		buf.WriteString(" /Resources ")
		serializeValue(&buf, dr, acroFormPtr.GetID())
	}

	fmt.Fprintf(&buf, " /Filter /FlateDecode /Length %d >>\nstream\n", len(encoded))
	buf.Write(encoded)
	buf.WriteString("\nendstream")

	return buf.Bytes()
}

// encodeStream compresses stream content at the context's compress level.
func (context *SignContext) encodeStream(content []byte) []byte {
	var b bytes.Buffer
	w := newZlibWriter(&b, context.CompressLevel)
	w.Write(content)
	w.Close()
	return b.Bytes()
}
