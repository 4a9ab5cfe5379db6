package sign

import (
	"fmt"
	"strings"
)

// updateByteRange computes the real byte range values and patches them over
// the placeholder. The first range covers everything before the /Contents hex
// span, the second everything after it, so only the reserved hex characters
// stay outside the digest.
func (context *SignContext) updateByteRange() error {
	if err := context.verifyPlaceholder(); err != nil {
		return err
	}

	output_size := int64(context.OutputBuffer.Buff.Len())
	contents_end := context.contentsOffset + int64(context.SignatureMaxLength)

	context.ByteRangeValues = []int64{
		0,
		context.contentsOffset,
		contents_end,
		output_size - contents_end,
	}

	new_byte_range := fmt.Sprintf("/ByteRange[%d %d %d %d]",
		context.ByteRangeValues[0], context.ByteRangeValues[1],
		context.ByteRangeValues[2], context.ByteRangeValues[3])

	// The byte range was reserved with generous room, overflowing it would
	// shift every recorded offset.
	if len(new_byte_range) > len(signatureByteRangePlaceholder) {
		return fmt.Errorf("new byte range string is larger than placeholder")
	}

	// Padding new byte range string with spaces so the total length stays the same.
	new_byte_range += strings.Repeat(" ", len(signatureByteRangePlaceholder)-len(new_byte_range))

	if _, err := context.OutputBuffer.Seek(context.byteRangeOffset, 0); err != nil {
		return err
	}
	if _, err := context.OutputBuffer.Write([]byte(new_byte_range)); err != nil {
		return err
	}

	return nil
}
