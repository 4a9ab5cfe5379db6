package sign

import (
	"fmt"
	"strconv"
)

// addObject writes a new body object to the output buffer and returns its
// object number. Numbers continue after the highest object of the previous
// revision; offsets are recorded for the incremental xref section.
func (context *SignContext) addObject(object []byte) (uint32, error) {
	if context.lastXrefID == 0 {
		lastXrefID, err := context.getLastObjectID()
		if err != nil {
			return 0, fmt.Errorf("failed to determine last object id: %w", err)
		}
		context.lastXrefID = lastXrefID
	}

	objectID := context.lastXrefID + uint32(len(context.newXrefEntries)) + 1
	context.newXrefEntries = append(context.newXrefEntries, xrefEntry{
		ID:     objectID,
		Offset: int64(context.OutputBuffer.Buff.Len()),
	})

	if err := context.writeObject(objectID, object); err != nil {
		return 0, err
	}

	return objectID, nil
}

// updateObject writes a replacement definition for an object of the previous
// revision. The object keeps its number; the incremental xref points the
// number at the new offset.
func (context *SignContext) updateObject(objectID uint32, object []byte) error {
	context.updatedXrefEntries = append(context.updatedXrefEntries, xrefEntry{
		ID:     objectID,
		Offset: int64(context.OutputBuffer.Buff.Len()),
	})

	return context.writeObject(objectID, object)
}

// AddObject exposes addObject for callers composing extra overlay objects.
func (context *SignContext) AddObject(object []byte) (uint32, error) {
	return context.addObject(object)
}

// UpdateObject exposes updateObject for callers replacing existing objects.
func (context *SignContext) UpdateObject(objectID uint32, object []byte) error {
	return context.updateObject(objectID, object)
}

func (context *SignContext) writeObject(objectID uint32, object []byte) error {
	if _, err := context.OutputBuffer.Write([]byte(strconv.Itoa(int(objectID)) + " 0 obj\n")); err != nil {
		return fmt.Errorf("failed to write object header: %w", err)
	}

	if _, err := context.OutputBuffer.Write(object); err != nil {
		return fmt.Errorf("failed to write object body: %w", err)
	}

	if _, err := context.OutputBuffer.Write([]byte("\nendobj\n")); err != nil {
		return fmt.Errorf("failed to write object trailer: %w", err)
	}

	return nil
}

// objectHeaderLen is the length of the "N 0 obj\n" framing written before an
// object body, needed to translate body-relative offsets into buffer offsets.
func objectHeaderLen(objectID uint32) int64 {
	return int64(len(strconv.Itoa(int(objectID)))) + int64(len(" 0 obj\n"))
}

// getLastObjectID derives the highest object number of the previous revision
// from its trailer size.
func (context *SignContext) getLastObjectID() (uint32, error) {
	itemCount := context.PDFReader.XrefInformation.ItemCount
	if itemCount <= 0 {
		return 0, fmt.Errorf("invalid xref item count %d", itemCount)
	}
	return uint32(itemCount) - 1, nil
}

func (context *SignContext) writeXref() error {
	context.NewXrefStart = int64(context.OutputBuffer.Buff.Len())

	switch context.PDFReader.XrefInformation.Type {
	case "table":
		return context.writeIncrXrefTable()
	case "stream":
		return context.writeXrefStream()
	default:
		return fmt.Errorf("unsupported xref type: %s", context.PDFReader.XrefInformation.Type)
	}
}
