package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openbackendHQ/pdfseal/internal/testpdf"
)

func writeTempPDF(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("Failed to write test document: %v", err)
	}
	return path
}

func TestListFields(t *testing.T) {
	path := writeTempPDF(t, testpdf.Document(
		testpdf.Field{Name: "Signature1", Type: "Sig"},
		testpdf.Field{Name: "FullName", Type: "Tx", Value: "Ada"},
	))

	var buf bytes.Buffer
	listFieldsImpl(path, &buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Signature1") ||
		!strings.Contains(lines[0], "type=Sig") ||
		!strings.Contains(lines[0], "page=1") ||
		!strings.Contains(lines[0], "rect=[100 100 300 160]") ||
		!strings.Contains(lines[0], "unsigned") {
		t.Errorf("Unexpected signature field line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "FullName") ||
		!strings.Contains(lines[1], "type=Tx") ||
		!strings.Contains(lines[1], "filled") {
		t.Errorf("Unexpected text field line: %q", lines[1])
	}
}

func TestListFieldsWithoutForm(t *testing.T) {
	b := testpdf.New()
	b.Add("<< /Type /Catalog /Pages 2 0 R >>")
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	path := writeTempPDF(t, b.Bytes())

	var buf bytes.Buffer
	listFieldsImpl(path, &buf)

	if buf.Len() != 0 {
		t.Errorf("Expected no output for a document without a form, got %q", buf.String())
	}
}

func TestListFieldsMissingFile(t *testing.T) {
	code := patchExit(t)
	expectExit(t, code, 1, func() {
		listFieldsImpl(filepath.Join(t.TempDir(), "missing.pdf"), io.Discard)
	})
}

func TestFieldsCommand(t *testing.T) {
	var got string
	orig := ListFields
	ListFields = func(input string, w io.Writer) { got = input }
	t.Cleanup(func() { ListFields = orig })

	patchArgs(t, "fields", "doc.pdf")
	FieldsCommand()

	if got != "doc.pdf" {
		t.Errorf("Expected doc.pdf, got %q", got)
	}
}

func TestFieldsCommandWithoutArgs(t *testing.T) {
	code := patchExit(t)
	patchArgs(t, "fields")
	expectExit(t, code, 1, FieldsCommand)
}
