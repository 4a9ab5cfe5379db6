package sign

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
)

// maxPageTreeDepth bounds the page tree walk so crafted /Kids cycles cannot
// recurse forever.
const maxPageTreeDepth = 100

// findPageByID walks the document's page tree for the page object with the
// given id.
func (context *SignContext) findPageByID(pageID uint32) (pdf.Value, error) {
	root := context.PDFReader.Trailer().Key("Root")
	page, ok := findPageNode(root.Key("Pages"), pageID, 0)
	if !ok {
		return pdf.Value{}, fmt.Errorf("%w: page object %d", ErrPageNotFound, pageID)
	}
	return page, nil
}

func findPageNode(node pdf.Value, pageID uint32, depth int) (pdf.Value, bool) {
	if depth > maxPageTreeDepth || node.IsNull() {
		return pdf.Value{}, false
	}
	nodePtr := node.GetPtr()
	if nodePtr.GetID() == pageID && node.Key("Type").Name() == "Page" {
		return node, true
	}
	kids := node.Key("Kids")
	if kids.Kind() == pdf.Array {
		for i := 0; i < kids.Len(); i++ {
			if page, ok := findPageNode(kids.Index(i), pageID, depth+1); ok {
				return page, true
			}
		}
	}
	return pdf.Value{}, false
}

// promotePage rewrites the page object into the incremental section with the
// draw content stream appended to /Contents and the image registered under
// /Resources /XObject. Everything else on the page is carried over untouched,
// so earlier revisions keep rendering identically.
func (context *SignContext) promotePage(pageID, drawContentID, imageID uint32) error {
	page, err := context.findPageByID(pageID)
	if err != nil {
		return err
	}

	imageName := imageResourceName(imageID)

	var buf bytes.Buffer
	buf.WriteString("<<")
	hasContents := false
	hasResources := false
	for _, key := range page.Keys() {
		switch key {
		case "Contents":
			hasContents = true
			buf.WriteString(" /Contents ")
			writeUpdatedContents(&buf, page.Key("Contents"), drawContentID)
		case "Resources":
			hasResources = true
			buf.WriteString(" /Resources ")
			writeUpdatedResources(&buf, page.Key("Resources"), imageName, imageID)
		default:
			buf.WriteString(" " + pdfName(key) + " ")
			serializeValue(&buf, page.Key(key), pageID)
		}
	}
	if !hasContents {
		fmt.Fprintf(&buf, " /Contents [%d 0 R]", drawContentID)
	}
	if !hasResources {
		fmt.Fprintf(&buf, " /Resources << /XObject << /%s %d 0 R >> >>", imageName, imageID)
	}
	buf.WriteString(" >>")

	if err := context.updateObject(pageID, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to update page object %d: %w", pageID, err)
	}

	return nil
}

// writeUpdatedContents emits the page's content streams as an array with the
// draw stream reference appended last, so the image paints over the existing
// page content.
func writeUpdatedContents(buf *bytes.Buffer, contents pdf.Value, drawContentID uint32) {
	buf.WriteString("[")
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			ptr := contents.Index(i).GetPtr()
			fmt.Fprintf(buf, "%d %d R ", ptr.GetID(), ptr.GetGen())
		}
	} else if !contents.IsNull() {
		ptr := contents.GetPtr()
		fmt.Fprintf(buf, "%d %d R ", ptr.GetID(), ptr.GetGen())
	}
	fmt.Fprintf(buf, "%d 0 R]", drawContentID)
}

// writeUpdatedResources emits the page resources inline with the image merged
// into /XObject. Members keep their indirect references, so a shared resource
// dictionary is copied by reference rather than duplicated.
func writeUpdatedResources(buf *bytes.Buffer, res pdf.Value, imageName string, imageID uint32) {
	buf.WriteString("<<")
	if res.Kind() == pdf.Dict {
		resPtr := res.GetPtr()
		resParent := resPtr.GetID()
		for _, key := range res.Keys() {
			if key == "XObject" {
				continue
			}
			buf.WriteString(" " + pdfName(key) + " ")
			serializeValue(buf, res.Key(key), resParent)
		}
	}
	buf.WriteString(" /XObject <<")
	xobj := res.Key("XObject")
	if xobj.Kind() == pdf.Dict {
		xobjPtr := xobj.GetPtr()
		xobjParent := xobjPtr.GetID()
		for _, key := range xobj.Keys() {
			if key == imageName {
				continue
			}
			buf.WriteString(" " + pdfName(key) + " ")
			serializeValue(buf, xobj.Key(key), xobjParent)
		}
	}
	fmt.Fprintf(buf, " /%s %d 0 R >> >>", imageName, imageID)
}
