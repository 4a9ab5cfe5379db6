package sign

import (
	"bytes"
	"fmt"
)

// promoteCatalog rewrites the document catalog into the incremental section
// with /Perms /DocMDP pointing at the certification signature. Approval and
// usage-rights signatures leave the catalog alone. The object keeps its
// number, so the trailer's /Root reference stays valid across revisions.
func (context *SignContext) promoteCatalog(signatureID uint32) error {
	if context.SignData.Signature.CertType != CertificationSignature {
		return nil
	}

	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	rootID := rootPtr.GetID()
	if rootID == 0 {
		return fmt.Errorf("catalog has no object number")
	}

	var buf bytes.Buffer
	buf.WriteString("<<")
	for _, key := range root.Keys() {
		// An earlier /Perms entry is replaced by the new one.
		if key == "Perms" {
			continue
		}
		buf.WriteString(" " + pdfName(key) + " ")
		serializeValue(&buf, root.Key(key), rootID)
	}
	fmt.Fprintf(&buf, " /Perms << /DocMDP %d 0 R >>", signatureID)
	buf.WriteString(" >>")

	if err := context.updateObject(rootID, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to update catalog object %d: %w", rootID, err)
	}

	return nil
}
