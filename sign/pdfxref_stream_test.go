package sign

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"

	"github.com/openbackendHQ/pdfseal/internal/testpdf"
)

func TestWriteXrefStreamLine(t *testing.T) {
	tests := []struct {
		name     string
		xreftype byte
		offset   int
		gen      byte
		want     []byte
	}{
		{"InUse", 1, 1234, 0, []byte{1, 0, 0, 4, 210, 0}},
		{"Free", 0, 0, 0, []byte{0, 0, 0, 0, 0, 0}},
		{"LargeOffset", 1, 16777215, 255, []byte{1, 0, 255, 255, 255, 255}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(st *testing.T) {
			var buf bytes.Buffer
			writeXrefStreamLine(&buf, tc.xreftype, tc.offset, tc.gen)
			if !bytes.Equal(buf.Bytes(), tc.want) {
				st.Errorf("got % x, want % x", buf.Bytes(), tc.want)
			}
		})
	}
}

func TestWriteXrefStream(t *testing.T) {
	context := newXrefTestContext(t, testpdf.Document(testpdf.Field{Name: "A", Type: "Tx"}))
	context.CatalogData.RootString = "1 0 R"

	// Mirror the state writeXref leaves behind: incremental body written,
	// NewXrefStart recorded, numbering primed by earlier addObject calls.
	padding := bytes.Repeat([]byte("%"), 300)
	context.OutputBuffer.Write(padding)
	context.NewXrefStart = int64(len(padding))
	context.lastXrefID = 5
	context.updatedXrefEntries = []xrefEntry{{ID: 3, Offset: 210}}
	context.newXrefEntries = []xrefEntry{{ID: 6, Offset: 100}}

	if err := context.writeXrefStream(); err != nil {
		t.Fatalf("failed to write xref stream: %v", err)
	}

	output := context.OutputBuffer.Buff.String()

	// The stream object continues numbering after the appended object.
	if !strings.Contains(output, "7 0 obj") {
		t.Errorf("missing stream object framing in %q", output)
	}

	for _, want := range []string{
		"/Type /XRef",
		"/Filter /FlateDecode",
		"/W [ 1 4 1 ]",
		"/Index [ 3 1 6 2 ]",
		"/Size 8",
		"/Root 1 0 R",
		"/Prev ",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in xref stream dictionary", want)
		}
	}

	entries := inflateXrefStream(t, output)
	want := []byte{
		1, 0, 0, 0, 210, 0, // replaced object 3
		1, 0, 0, 0, 100, 0, // appended object 6
		1, 0, 0, 1, 44, 0, // the stream object itself at offset 300
	}
	if !bytes.Equal(entries, want) {
		t.Errorf("xref stream entries\ngot  % x\nwant % x", entries, want)
	}
}

// inflateXrefStream cuts the stream body out of the serialized object and
// inflates it.
func inflateXrefStream(t *testing.T, output string) []byte {
	t.Helper()

	start := strings.Index(output, "stream\n")
	end := strings.Index(output, "\nendstream")
	if start < 0 || end < 0 || end <= start {
		t.Fatalf("no stream content in %q", output)
	}

	r, err := zlib.NewReader(strings.NewReader(output[start+len("stream\n") : end]))
	if err != nil {
		t.Fatalf("failed to open xref stream: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to inflate xref stream: %v", err)
	}
	return data
}
