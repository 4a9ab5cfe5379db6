package sign

import (
	"fmt"
)

// writeIncrXrefTable appends a classic cross-reference section for the
// incremental update. Replaced objects get a single-entry subsection each
// because their numbers are not contiguous; appended objects share one
// subsection continuing after the last number of the previous revision.
func (context *SignContext) writeIncrXrefTable() error {
	if _, err := context.OutputBuffer.Write([]byte("xref\n")); err != nil {
		return fmt.Errorf("failed to write xref keyword: %w", err)
	}

	for _, entry := range context.updatedXrefEntries {
		if err := context.writeXrefSubsection(entry.ID, []xrefEntry{entry}); err != nil {
			return fmt.Errorf("failed to write replacement subsection: %w", err)
		}
	}

	if err := context.writeXrefSubsection(context.lastXrefID+1, context.newXrefEntries); err != nil {
		return fmt.Errorf("failed to write appended subsection: %w", err)
	}

	return nil
}

// writeXrefSubsection writes a "first count" subsection of in-use entries.
// Each entry is the fixed 20-byte form: ten-digit offset, five-digit
// generation, marker and a two-byte line end.
func (context *SignContext) writeXrefSubsection(first uint32, entries []xrefEntry) error {
	if _, err := fmt.Fprintf(context.OutputBuffer, "%d %d\n", first, len(entries)); err != nil {
		return err
	}

	for _, entry := range entries {
		if _, err := fmt.Fprintf(context.OutputBuffer, "%010d 00000 n\r\n", entry.Offset); err != nil {
			return err
		}
	}

	return nil
}
