// Package forms provides a typed view over the interactive form fields of a
// PDF document. Fields are discovered fresh from the reader on every load;
// the reader already resolves each object to its newest definition across the
// document's revision chain, so the walk always reports the current state.
package forms

import (
	"errors"
	"fmt"

	"github.com/digitorus/pdf"
)

var (
	// ErrNoAcroForm is returned when the document catalog carries no AcroForm.
	// Callers that only want to enumerate fields treat this as "zero fields".
	ErrNoAcroForm = errors.New("forms: document has no AcroForm")

	// ErrMalformedForm is returned when the field tree references a missing
	// object or contains a cycle.
	ErrMalformedForm = errors.New("forms: malformed form structure")
)

// maxFieldDepth bounds the Kids recursion; a well-formed document never
// nests fields this deep.
const maxFieldDepth = 100

// maxPageTreeDepth bounds the page tree walk against crafted /Kids cycles.
const maxPageTreeDepth = 100

// FieldType is the value of a field's /FT entry.
type FieldType string

const (
	TypeSignature FieldType = "Sig"
	TypeText      FieldType = "Tx"
	TypeButton    FieldType = "Btn"
	TypeChoice    FieldType = "Ch"
)

// FormField is one terminal form field together with the widget data the
// signing and filling paths need. The record is read-only: mutation happens
// on the underlying document, never on a FormField.
type FormField struct {
	// Name joins the /T entries of the parent chain with ".".
	Name string

	Type FieldType

	// ObjectID and Gen identify the field dictionary in the document.
	// ObjectID is zero for fields written as direct array entries; such
	// fields can be listed but not updated.
	ObjectID uint32
	Gen      uint32

	// Rect is the widget's placement rectangle [llx lly urx ury].
	Rect [4]float64

	// PageID is the object number of the /P page, zero when absent.
	PageID  uint32
	PageGen uint32

	// DA is the field's default-appearance string, inherited through the
	// parent chain when the terminal dictionary has none.
	DA string

	// Value is the resolved field dictionary, usable for re-serialization.
	Value pdf.Value

	// HasValue reports whether the field carries a /V entry.
	HasValue bool
}

// IsEmptySignature reports whether the field is a signature field that has
// not been signed yet.
func (f *FormField) IsEmptySignature() bool {
	return f.Type == TypeSignature && !f.HasValue
}

// inherited carries the attributes a field passes down to its kids.
type inherited struct {
	ft string
	da string
}

// Extract enumerates every terminal field reachable from Root/AcroForm/Fields
// in document tree order.
func Extract(r *pdf.Reader) ([]FormField, error) {
	if r == nil {
		return nil, ErrNoAcroForm
	}

	root := r.Trailer().Key("Root")
	acroForm := root.Key("AcroForm")
	if acroForm.IsNull() {
		return nil, ErrNoAcroForm
	}

	fields := acroForm.Key("Fields")
	if fields.IsNull() || fields.Kind() != pdf.Array {
		return nil, nil
	}

	var result []FormField
	visited := make(map[uint32]bool)
	for i := 0; i < fields.Len(); i++ {
		if err := walkField(fields.Index(i), "", inherited{}, 0, visited, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func walkField(v pdf.Value, prefix string, inh inherited, depth int, visited map[uint32]bool, result *[]FormField) error {
	if v.IsNull() {
		return fmt.Errorf("%w: field entry references a missing object", ErrMalformedForm)
	}
	if depth > maxFieldDepth {
		return fmt.Errorf("%w: field nesting deeper than %d", ErrMalformedForm, maxFieldDepth)
	}

	ptr := v.GetPtr()
	id := ptr.GetID()
	if id != 0 {
		if visited[id] {
			return fmt.Errorf("%w: field object %d appears twice in the tree", ErrMalformedForm, id)
		}
		visited[id] = true
	}

	name := v.Key("T").Text()
	if prefix != "" && name != "" {
		name = prefix + "." + name
	} else if name == "" {
		name = prefix
	}

	if ft := v.Key("FT").Name(); ft != "" {
		inh.ft = ft
	}
	if da := v.Key("DA"); !da.IsNull() {
		inh.da = da.Text()
	}

	// A node carrying a field type is a terminal field; widget kids of the
	// same field are collapsed into it.
	if inh.ft != "" {
		field := FormField{
			Name:     name,
			Type:     FieldType(inh.ft),
			ObjectID: id,
			Gen:      uint32(ptr.GetGen()),
			DA:       inh.da,
			Value:    v,
			HasValue: !v.Key("V").IsNull(),
		}

		if rect := v.Key("Rect"); rect.Kind() == pdf.Array && rect.Len() >= 4 {
			for i := 0; i < 4; i++ {
				field.Rect[i] = rect.Index(i).Float64()
			}
		}
		if page := v.Key("P"); !page.IsNull() {
			pagePtr := page.GetPtr()
			field.PageID = pagePtr.GetID()
			field.PageGen = uint32(pagePtr.GetGen())
		}

		*result = append(*result, field)
		return nil
	}

	kids := v.Key("Kids")
	if kids.Kind() == pdf.Array {
		for i := 0; i < kids.Len(); i++ {
			if err := walkField(kids.Index(i), name, inh, depth+1, visited, result); err != nil {
				return err
			}
		}
	}

	return nil
}

// PageNumbers maps page object numbers to 1-based page indices in document
// order. Fields reference their page by object number; this resolves that
// reference to the number a viewer would display.
func PageNumbers(r *pdf.Reader) map[uint32]int {
	numbers := make(map[uint32]int)
	if r == nil {
		return numbers
	}
	walkPages(r.Trailer().Key("Root").Key("Pages"), 0, numbers)
	return numbers
}

func walkPages(node pdf.Value, depth int, numbers map[uint32]int) {
	if depth > maxPageTreeDepth || node.IsNull() {
		return
	}
	if node.Key("Type").Name() == "Page" {
		nodePtr := node.GetPtr()
		id := nodePtr.GetID()
		if _, seen := numbers[id]; !seen {
			numbers[id] = len(numbers) + 1
		}
		return
	}
	kids := node.Key("Kids")
	if kids.Kind() == pdf.Array {
		for i := 0; i < kids.Len(); i++ {
			walkPages(kids.Index(i), depth+1, numbers)
		}
	}
}

// MapFields maps full field names to their resolved dictionaries, terminal
// fields only.
func MapFields(r *pdf.Reader) (map[string]pdf.Value, error) {
	fields, err := Extract(r)
	if err != nil {
		return nil, err
	}

	m := make(map[string]pdf.Value, len(fields))
	for i := range fields {
		m[fields[i].Name] = fields[i].Value
	}
	return m, nil
}
