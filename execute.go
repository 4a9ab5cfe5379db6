package pdfseal

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/digitorus/pdf"

	"github.com/openbackendHQ/pdfseal/forms"
	"github.com/openbackendHQ/pdfseal/sign"
)

// SignAll signs every empty signature field that matches one of the inputs
// and writes the final document to output. A field matches an input when its
// name equals the input's ID, or when its name is a JSON field key whose
// userId equals the input's ID.
//
// Fields are scanned by index. Signed, unmatched and previously failed
// fields are skipped. On a match one incremental update is produced, the
// session reloads the new bytes, fields are rediscovered and the scan
// restarts from the first field. If no input matched any field the output
// equals the unmodified session bytes.
func (d *Document) SignAll(inputs []SignerInput, output io.Writer) (*Result, error) {
	return d.signAll(inputs, output, false)
}

// SignAllByGroup is SignAll with group matching: a field whose name is a
// JSON field key matches an input when the key's boxId equals the input's
// GroupID. Plain field names still match against the input IDs.
func (d *Document) SignAllByGroup(inputs []SignerInput, output io.Writer) (*Result, error) {
	return d.signAll(inputs, output, true)
}

func (d *Document) signAll(inputs []SignerInput, output io.Writer, byGroup bool) (*Result, error) {
	result := &Result{}

	byID := make(map[string]*SignerInput, len(inputs))
	byGroupID := make(map[string]*SignerInput, len(inputs))
	for i := range inputs {
		input := &inputs[i]
		if input.ID != "" {
			byID[input.ID] = input
		}
		if input.GroupID != "" {
			byGroupID[input.GroupID] = input
		}
	}
	match := func(name string) *SignerInput {
		if key, ok := ParseFieldKey(name); ok {
			if byGroup {
				return byGroupID[key.BoxID]
			}
			return byID[key.UserID]
		}
		return byID[name]
	}

	fields, err := d.formFields()
	if err != nil {
		return nil, err
	}

	// Fields whose cycle failed stay failed for the rest of the run.
	failed := make(map[uint32]bool)

	passes := 0
	index := 0
	for index < len(fields) {
		passes++
		if passes >= d.maxPasses {
			d.logger.Printf("Infinite loop detected and prevented. Please check file: `%s`.", d.name)
			break
		}

		field := fields[index]
		if !field.IsEmptySignature() || failed[field.ObjectID] {
			index++
			continue
		}

		input := match(field.Name)
		if input == nil {
			index++
			continue
		}

		signed, info, err := d.signField(field, input)
		if err != nil {
			failed[field.ObjectID] = true
			fieldErr := &FieldError{Field: field.Name, ObjectID: field.ObjectID, Err: err}
			result.FieldErrors = append(result.FieldErrors, fieldErr)
			d.logger.Printf("skipping field %q after signing error: %v", field.Name, err)
			index++
			continue
		}

		if err := d.reload(signed); err != nil {
			return result, fmt.Errorf("failed to reload signed output: %w", err)
		}
		fields, err = d.formFields()
		if err != nil {
			return result, err
		}

		info.ByteRange = signedByteRange(fields, field)
		result.Signatures = append(result.Signatures, info)
		index = 0
	}

	if _, err := output.Write(d.current); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	return result, nil
}

// signField runs one full signing cycle for the field against the current
// session bytes and returns the produced document.
func (d *Document) signField(field forms.FormField, input *SignerInput) ([]byte, SignatureInfo, error) {
	now := time.Now()
	data := sign.SignData{
		Signature: sign.SignDataSignature{
			CertType:   sign.ApprovalSignature,
			DocMDPPerm: sign.AllowFillingExistingFormFieldsAndSignaturesPerms,
			Info: sign.SignDataSignatureInfo{
				Name:        input.Name,
				Location:    input.Location,
				Reason:      input.Reason,
				ContactInfo: input.Email,
				Date:        now,
			},
		},
		Signer:             input.Signer,
		DigestAlgorithm:    input.DigestAlgorithm,
		Certificate:        input.Certificate,
		CertificateChains:  input.CertificateChains,
		TSA:                input.TSA,
		RevocationFunction: input.RevocationFunction,
		Field: sign.FieldData{
			ObjectID: field.ObjectID,
			Name:     field.Name,
			Rect:     field.Rect,
			PageID:   field.PageID,
			Image:    input.Image,
			ImageKey: imageKey(input),
		},
		ImageCache:    d.imageCache,
		CompressLevel: d.compressLevel,
	}

	var buf bytes.Buffer
	if err := sign.Sign(bytes.NewReader(d.current), &buf, d.rdr, int64(len(d.current)), data); err != nil {
		return nil, SignatureInfo{}, err
	}

	info := SignatureInfo{
		Field:       field.Name,
		ObjectID:    field.ObjectID,
		Signer:      input.ID,
		SignerName:  input.Name,
		SigningTime: now,
	}
	return buf.Bytes(), info, nil
}

// signedByteRange reads back the /ByteRange the engine wrote, from the
// freshly rediscovered field set.
func signedByteRange(fields []forms.FormField, signed forms.FormField) [4]int64 {
	var byteRange [4]int64
	for i := range fields {
		field := &fields[i]
		if field.ObjectID != signed.ObjectID || field.Name != signed.Name {
			continue
		}

		ranges := field.Value.Key("V").Key("ByteRange")
		if ranges.Kind() != pdf.Array || ranges.Len() != 4 {
			return byteRange
		}
		for j := 0; j < 4; j++ {
			byteRange[j] = ranges.Index(j).Int64()
		}
		return byteRange
	}
	return byteRange
}
