package pdfseal

import (
	"bytes"
	"compress/zlib"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openbackendHQ/pdfseal/internal/testpdf"
)

func newTestDocument(t *testing.T, content []byte) *Document {
	t.Helper()

	doc, err := OpenBytes(content)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	return doc
}

func TestOpen(t *testing.T) {
	content := testpdf.SignatureField("Signature1")

	t.Run("Bytes", func(st *testing.T) {
		st.Parallel()

		doc := newTestDocument(st, content)
		fields, err := doc.FormFields()
		if err != nil {
			st.Fatalf("FormFields: %v", err)
		}
		if len(fields) != 1 || fields[0].Name != "Signature1" {
			st.Fatalf("unexpected fields: %+v", fields)
		}
	})

	t.Run("ReaderAt", func(st *testing.T) {
		st.Parallel()

		doc, err := Open(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			st.Fatalf("Open: %v", err)
		}
		if !bytes.Equal(doc.Bytes(), content) {
			st.Error("session bytes differ from input")
		}
	})

	t.Run("File", func(st *testing.T) {
		st.Parallel()

		path := filepath.Join(st.TempDir(), "input.pdf")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			st.Fatalf("write temp file: %v", err)
		}

		doc, err := OpenFile(path)
		if err != nil {
			st.Fatalf("OpenFile: %v", err)
		}
		if doc.name != path {
			st.Errorf("name = %q, want %q", doc.name, path)
		}
	})

	t.Run("Garbage", func(st *testing.T) {
		st.Parallel()

		if _, err := OpenBytes([]byte("not a pdf")); err == nil {
			st.Error("expected error for non-PDF input")
		}
	})

	t.Run("MissingFile", func(st *testing.T) {
		st.Parallel()

		if _, err := OpenFile("does-not-exist.pdf"); err == nil {
			st.Error("expected error for missing file")
		}
	})
}

func TestDocumentSettings(t *testing.T) {
	doc := newTestDocument(t, testpdf.SignatureField("Signature1"))

	doc.SetMaxPasses(0)
	if doc.maxPasses != DefaultMaxPasses {
		t.Errorf("maxPasses = %d after SetMaxPasses(0), want default %d", doc.maxPasses, DefaultMaxPasses)
	}
	doc.SetMaxPasses(25)
	if doc.maxPasses != 25 {
		t.Errorf("maxPasses = %d, want 25", doc.maxPasses)
	}

	doc.SetLogger(nil)
	if doc.logger == nil {
		t.Error("SetLogger(nil) must keep the default logger")
	}

	doc.SetName("contract.pdf")
	if doc.name != "contract.pdf" {
		t.Errorf("name = %q, want contract.pdf", doc.name)
	}

	doc.SetCompression(zlib.BestSpeed)
	if doc.compressLevel != zlib.BestSpeed {
		t.Errorf("compressLevel = %d, want zlib.BestSpeed", doc.compressLevel)
	}
}

func TestFormFieldsWithoutAcroForm(t *testing.T) {
	b := testpdf.New()
	b.Add("<< /Type /Catalog /Pages 2 0 R >>")
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")

	doc := newTestDocument(t, b.Bytes())
	fields, err := doc.FormFields()
	if err != nil {
		t.Fatalf("FormFields: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected zero fields, got %d", len(fields))
	}
}

func TestDocumentFill(t *testing.T) {
	content := testpdf.Document(testpdf.Field{Name: "FullName", Type: "Tx", DA: "/Helv 12 Tf 0 g"})
	doc := newTestDocument(t, content)

	if err := doc.Fill(map[string]string{"FullName": "Ada Lovelace"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	if !bytes.HasPrefix(doc.Bytes(), content) {
		t.Error("filled document must extend the original bytes")
	}

	fields, err := doc.FormFields()
	if err != nil {
		t.Fatalf("FormFields: %v", err)
	}
	if len(fields) != 1 || !fields[0].HasValue {
		t.Fatalf("field has no value after fill: %+v", fields)
	}
	if got := fields[0].Value.Key("V").Text(); got != "Ada Lovelace" {
		t.Errorf("value = %q, want Ada Lovelace", got)
	}

	appearance, err := io.ReadAll(fields[0].Value.Key("AP").Key("N").Reader())
	if err != nil {
		t.Fatalf("read appearance stream: %v", err)
	}
	if !strings.Contains(string(appearance), "(Ada Lovelace) Tj") {
		t.Error("appearance stream does not draw the filled value")
	}
}

func TestDocumentFillNoMatch(t *testing.T) {
	content := testpdf.Document(testpdf.Field{Name: "FullName", Type: "Tx", DA: "/Helv 12 Tf 0 g"})
	doc := newTestDocument(t, content)

	if err := doc.Fill(map[string]string{"Other": "value"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if !bytes.Equal(doc.Bytes(), content) {
		t.Error("fill without matching fields must leave the session bytes unchanged")
	}

	// An empty value map is a no-op.
	if err := doc.Fill(nil); err != nil {
		t.Fatalf("Fill(nil): %v", err)
	}
}

func TestParseFieldKey(t *testing.T) {
	key, ok := ParseFieldKey(`{"userId":"u-17","boxId":"b-3"}`)
	if !ok {
		t.Fatal("envelope name not recognized")
	}
	if key.UserID != "u-17" || key.BoxID != "b-3" {
		t.Errorf("parsed key = %+v", key)
	}

	if _, ok := ParseFieldKey("Signature1"); ok {
		t.Error("plain name parsed as envelope")
	}
	if _, ok := ParseFieldKey("{not json"); ok {
		t.Error("broken JSON parsed as envelope")
	}

	key, ok = ParseFieldKey(" {\"userId\":\"u\"} ")
	if !ok || key.UserID != "u" {
		t.Error("surrounding whitespace must be tolerated")
	}
}
