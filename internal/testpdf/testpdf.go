// Package testpdf assembles minimal but structurally valid PDF files for
// tests: a correct header, body objects, cross-reference table and trailer,
// with all offsets computed. The files parse with github.com/digitorus/pdf
// and serve as signing inputs.
package testpdf

import (
	"bytes"
	"fmt"
	"strings"
)

// Builder accumulates body objects. Object numbers are assigned
// sequentially from 1 in the order of Add calls.
type Builder struct {
	objects []string
}

func New() *Builder {
	return &Builder{}
}

// Add appends one body object and returns its object number. The body is the
// object content without the "N 0 obj"/"endobj" framing.
func (b *Builder) Add(body string) uint32 {
	b.objects = append(b.objects, body)
	return uint32(len(b.objects))
}

// Bytes assembles the document: header, objects, cross-reference table,
// trailer and startxref. Object 1 must be the document catalog.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.6\n")
	buf.WriteString("%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", offset)
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\n", len(b.objects)+1)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return buf.Bytes()
}

// Field describes one terminal form field for Document.
type Field struct {
	Name string
	Type string // field type without the slash, e.g. "Sig" or "Tx"

	// Value, when non-empty, is written as a literal string /V entry so the
	// field reads as already filled or signed.
	Value string

	DA   string
	Rect [4]float64
}

// Document builds a one-page file carrying the given fields as widget
// annotations. Objects are laid out as catalog (1), page tree (2), page (3),
// page content (4) and one object per field from 5 on.
func Document(fields ...Field) []byte {
	b := New()

	firstField := 5
	var fieldRefs []string
	for i := range fields {
		fieldRefs = append(fieldRefs, fmt.Sprintf("%d 0 R", firstField+i))
	}
	refs := strings.Join(fieldRefs, " ")

	b.Add(fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [%s] /SigFlags 3 >> >>", refs))
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << >> /Annots [%s] >>", refs))

	content := "q Q"
	b.Add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

	for _, f := range fields {
		rect := f.Rect
		if rect == [4]float64{} {
			rect = [4]float64{100, 100, 300, 160}
		}

		var field strings.Builder
		field.WriteString("<< /Type /Annot /Subtype /Widget /F 4")
		fmt.Fprintf(&field, " /FT /%s", f.Type)
		fmt.Fprintf(&field, " /T (%s)", escapeString(f.Name))
		fmt.Fprintf(&field, " /Rect [%g %g %g %g]", rect[0], rect[1], rect[2], rect[3])
		field.WriteString(" /P 3 0 R")
		if f.DA != "" {
			fmt.Fprintf(&field, " /DA (%s)", escapeString(f.DA))
		}
		if f.Value != "" {
			if f.Type == "Sig" {
				field.WriteString(" /V << /Type /Sig >>")
			} else {
				fmt.Fprintf(&field, " /V (%s)", escapeString(f.Value))
			}
		}
		field.WriteString(" >>")

		b.Add(field.String())
	}

	return b.Bytes()
}

// SignatureField is a Document shorthand for a single empty signature field.
func SignatureField(name string) []byte {
	return Document(Field{Name: name, Type: "Sig"})
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "(", "\\(")
	s = strings.ReplaceAll(s, ")", "\\)")
	return s
}
