package sign

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/digitorus/pdf"

	"github.com/openbackendHQ/pdfseal/forms"
)

const maxFieldTreeDepth = 100

// resolveField fills in the field's object id, rectangle and page from the
// form when the caller only provided a name. An explicit object id is used
// as-is.
func (context *SignContext) resolveField() error {
	if context.SignData.Field.ObjectID != 0 {
		return nil
	}
	if context.SignData.Field.Name == "" {
		return fmt.Errorf("%w: no field name or object id given", ErrFieldNotFound)
	}

	fields, err := forms.Extract(context.PDFReader)
	if errors.Is(err, forms.ErrNoAcroForm) {
		// No form at all means no fields to match.
		return fmt.Errorf("%w: %q", ErrFieldNotFound, context.SignData.Field.Name)
	}
	if err != nil {
		return fmt.Errorf("extract form fields: %w", err)
	}
	for _, f := range fields {
		if f.Name != context.SignData.Field.Name || f.Type != forms.TypeSignature {
			continue
		}
		context.SignData.Field.ObjectID = f.ObjectID
		if context.SignData.Field.Rect == ([4]float64{}) {
			context.SignData.Field.Rect = f.Rect
		}
		if context.SignData.Field.PageID == 0 {
			context.SignData.Field.PageID = f.PageID
		}
		return nil
	}

	return fmt.Errorf("%w: %q", ErrFieldNotFound, context.SignData.Field.Name)
}

// findFieldByID walks the AcroForm field tree for the field object with the
// given id.
func (context *SignContext) findFieldByID(fieldID uint32) (pdf.Value, error) {
	fields := context.PDFReader.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	if fields.Kind() == pdf.Array {
		for i := 0; i < fields.Len(); i++ {
			if f, ok := findFieldNode(fields.Index(i), fieldID, 0); ok {
				return f, nil
			}
		}
	}
	return pdf.Value{}, fmt.Errorf("%w: field object %d", ErrFieldNotFound, fieldID)
}

func findFieldNode(node pdf.Value, fieldID uint32, depth int) (pdf.Value, bool) {
	if depth > maxFieldTreeDepth || node.IsNull() {
		return pdf.Value{}, false
	}
	nodePtr := node.GetPtr()
	if nodePtr.GetID() == fieldID {
		return node, true
	}
	kids := node.Key("Kids")
	if kids.Kind() == pdf.Array {
		for i := 0; i < kids.Len(); i++ {
			if f, ok := findFieldNode(kids.Index(i), fieldID, depth+1); ok {
				return f, true
			}
		}
	}
	return pdf.Value{}, false
}

// updateSignatureField rewrites the signature field object with /V pointing
// at the new signature dictionary. Every other entry of the field is carried
// over unchanged.
func (context *SignContext) updateSignatureField(fieldID, signatureID uint32) error {
	field, err := context.findFieldByID(fieldID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("<<")
	for _, key := range field.Keys() {
		if key == "V" {
			continue
		}
		buf.WriteString(" " + pdfName(key) + " ")
		serializeValue(&buf, field.Key(key), fieldID)
	}
	fmt.Fprintf(&buf, " /V %d 0 R", signatureID)
	buf.WriteString(" >>")

	if err := context.updateObject(fieldID, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to update field object %d: %w", fieldID, err)
	}

	return nil
}
