package pdfseal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/openbackendHQ/pdfseal/forms"
	"github.com/openbackendHQ/pdfseal/sign"
)

// FormFields returns all terminal form fields of the current session bytes.
// Fields are rediscovered on every call; an applied signature or fill
// invalidates previously returned fields.
func (d *Document) FormFields() ([]forms.FormField, error) {
	return d.formFields()
}

// formFields discovers the form fields of the current session bytes. A
// document without an AcroForm has zero fields.
func (d *Document) formFields() ([]forms.FormField, error) {
	fields, err := forms.Extract(d.rdr)
	if err != nil {
		if errors.Is(err, forms.ErrNoAcroForm) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read form fields: %w", err)
	}
	return fields, nil
}

// Fill sets text field values by name and regenerates their appearance
// streams, replacing the session bytes with the filled document. Names match
// case-insensitively; fields without a matching entry keep their value, and
// a document without matching fields passes through unchanged.
func (d *Document) Fill(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	var buf bytes.Buffer
	context := sign.SignContext{
		PDFReader:     d.rdr,
		InputFile:     bytes.NewReader(d.current),
		OutputFile:    &buf,
		CompressLevel: d.compressLevel,
	}
	if err := context.FillPDF(values); err != nil {
		return err
	}
	return d.reload(buf.Bytes())
}
