package sign

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func placeholderSignData(certType CertType, date time.Time) SignData {
	return SignData{
		Signature: SignDataSignature{
			Info: SignDataSignatureInfo{
				Name:        "John Doe",
				Location:    "Somewhere",
				Reason:      "Test",
				ContactInfo: "None",
				Date:        date,
			},
			CertType:   certType,
			DocMDPPerm: AllowFillingExistingFormFieldsAndSignaturesPerms,
		},
	}
}

func TestCreateSignaturePlaceholder(t *testing.T) {
	timezone, _ := time.LoadLocation("Europe/Tallinn")
	date := time.Date(2017, 9, 23, 14, 39, 0, 0, timezone)

	prefix := "<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached" +
		" /ByteRange[0 ********** ********** **********] /Contents<00000000>"
	info := " /Name (John Doe) /Location (Somewhere) /Reason (Test) /ContactInfo (None)" +
		" /M (D:20170923143900+03'00') >>"

	tests := []struct {
		name     string
		certType CertType
		want     string
	}{
		{"Approval", ApprovalSignature, prefix + info},
		{"Certification", CertificationSignature, prefix +
			" /Reference [ << /Type /SigRef /TransformMethod /DocMDP" +
			" /TransformParams << /Type /TransformParams /P 2 /V /1.2 >> >> ]" + info},
		{"UsageRights", UsageRightsSignature, prefix +
			" /Reference [ << /Type /SigRef /TransformMethod /UR3" +
			" /TransformParams << /Type /TransformParams /V /2.2 >> >> ]" + info},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(st *testing.T) {
			context := &SignContext{
				SignatureMaxLength: 8,
				SignData:           placeholderSignData(tc.certType, date),
			}

			payload, byteRangeOffset, contentsOffset := context.createSignaturePlaceholder()
			if string(payload) != tc.want {
				st.Errorf("placeholder mismatch\ngot:  %q\nwant: %q", payload, tc.want)
			}

			// The returned offsets must pin the patchable spans exactly.
			if !bytes.HasPrefix(payload[byteRangeOffset:], []byte("/ByteRange[")) {
				st.Errorf("byte range offset %d points at %q", byteRangeOffset, payload[byteRangeOffset:])
			}
			span := payload[contentsOffset : contentsOffset+8]
			if !bytes.Equal(span, bytes.Repeat([]byte("0"), 8)) {
				st.Errorf("contents offset %d points at %q", contentsOffset, span)
			}
			if payload[contentsOffset-1] != '<' || payload[contentsOffset+8] != '>' {
				st.Error("contents span is not hex-delimited")
			}
		})
	}
}

func TestCreateSignaturePlaceholderOmitsEmptyInfo(t *testing.T) {
	context := &SignContext{
		SignatureMaxLength: 4,
		SignData: SignData{
			Signature: SignDataSignature{
				CertType: ApprovalSignature,
				Info:     SignDataSignatureInfo{Date: time.Unix(1506170340, 0).UTC()},
			},
		},
	}

	payload, _, _ := context.createSignaturePlaceholder()
	for _, key := range []string{"/Name", "/Location", "/Reason", "/ContactInfo"} {
		if strings.Contains(string(payload), key) {
			t.Errorf("empty info still produced %s", key)
		}
	}
	if !strings.Contains(string(payload), " /M (D:") {
		t.Error("signing time missing from placeholder")
	}
}
