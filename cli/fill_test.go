package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitorus/pdf"

	"github.com/openbackendHQ/pdfseal/forms"
	"github.com/openbackendHQ/pdfseal/internal/testpdf"
)

// readField parses the written document and returns the named field's value
// and decoded appearance stream content.
func readField(t *testing.T, path, name string) (value, appearance string) {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	rdr, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	fields, err := forms.Extract(rdr)
	if err != nil {
		t.Fatalf("Failed to extract fields: %v", err)
	}

	for _, field := range fields {
		if field.Name != name {
			continue
		}
		value = field.Value.Key("V").Text()
		if ap := field.Value.Key("AP").Key("N"); ap.Kind() == pdf.Stream {
			data, err := io.ReadAll(ap.Reader())
			if err != nil {
				t.Fatalf("Failed to read appearance stream: %v", err)
			}
			appearance = string(data)
		}
		return value, appearance
	}
	t.Fatalf("Field %q missing from output", name)
	return "", ""
}

func TestFillPDF(t *testing.T) {
	original := testpdf.Document(
		testpdf.Field{Name: "FullName", Type: "Tx", DA: "/Helv 12 Tf 0 g"},
	)
	in := writeTempPDF(t, original)
	out := filepath.Join(t.TempDir(), "out.pdf")

	fillPDFImpl(in, out, "", map[string]string{"FullName": "Ada"})

	filled, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !bytes.HasPrefix(filled, original) {
		t.Error("Expected the output to extend the input incrementally")
	}

	value, appearance := readField(t, out, "FullName")
	if value != "Ada" {
		t.Errorf("Expected value Ada, got %q", value)
	}
	if !strings.Contains(appearance, "(Ada) Tj") {
		t.Error("Expected the filled value in the appearance stream")
	}
}

func TestFillPDFConfigMerge(t *testing.T) {
	original := testpdf.Document(
		testpdf.Field{Name: "FullName", Type: "Tx", DA: "/Helv 12 Tf 0 g"},
		testpdf.Field{Name: "City", Type: "Tx", DA: "/Helv 12 Tf 0 g"},
	)
	dir := t.TempDir()
	in := writeTempPDF(t, original)
	out := filepath.Join(dir, "out.pdf")

	configPath := filepath.Join(dir, "run.yaml")
	configContent := "fill:\n  FullName: From Config\n  City: Delft\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	fillPDFImpl(in, out, configPath, map[string]string{"FullName": "Override"})

	if value, _ := readField(t, out, "FullName"); value != "Override" {
		t.Errorf("Expected the -set value to override the config fill map, got %q", value)
	}
	if value, _ := readField(t, out, "City"); value != "Delft" {
		t.Errorf("Expected the config fill value for the untouched field, got %q", value)
	}
}

func TestFillPDFNothingToFill(t *testing.T) {
	in := writeTempPDF(t, testpdf.Document(
		testpdf.Field{Name: "FullName", Type: "Tx"},
	))
	out := filepath.Join(t.TempDir(), "out.pdf")

	code := patchExit(t)
	expectExit(t, code, 1, func() {
		fillPDFImpl(in, out, "", nil)
	})
}

func TestFillCommandRequiresInOut(t *testing.T) {
	called := false
	orig := FillPDF
	FillPDF = func(in, out, configPath string, values map[string]string) { called = true }
	t.Cleanup(func() { FillPDF = orig })

	code := patchExit(t)
	patchArgs(t, "fill", "-set", "Name=Jane")
	expectExit(t, code, 1, FillCommand)

	if called {
		t.Error("Expected FillPDF not to run without -in/-out")
	}
}
