package cli

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/openbackendHQ/pdfseal"
	"github.com/openbackendHQ/pdfseal/forms"
)

func FieldsCommand() {
	fieldsFlags := flag.NewFlagSet("fields", flag.ExitOnError)

	fieldsFlags.Usage = func() {
		fmt.Printf("Usage: %s fields <input.pdf>\n\n", os.Args[0])
		fmt.Println("List the interactive form fields of a PDF file")
		fmt.Println("\nExamples:")
		fmt.Printf("  %s fields document.pdf\n", os.Args[0])
	}

	if err := fieldsFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse fields flags: %v", err)
		osExit(1)
		return
	}

	if len(fieldsFlags.Args()) < 1 {
		fieldsFlags.Usage()
		osExit(1)
		return
	}

	ListFields(fieldsFlags.Arg(0), os.Stdout)
}

// ListFields prints one line per form field; tests swap it out.
var ListFields = listFieldsImpl

func listFieldsImpl(input string, w io.Writer) {
	doc, err := pdfseal.OpenFile(input)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	fields, err := doc.FormFields()
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	pages := forms.PageNumbers(doc.Reader())
	for i := range fields {
		field := &fields[i]
		fmt.Fprintf(w, "%s\ttype=%s\tpage=%d\trect=[%g %g %g %g]\t%s\n",
			field.Name, field.Type, pages[field.PageID],
			field.Rect[0], field.Rect[1], field.Rect[2], field.Rect[3],
			fieldState(field))
	}
}

func fieldState(field *forms.FormField) string {
	if field.Type == forms.TypeSignature {
		if field.HasValue {
			return "signed"
		}
		return "unsigned"
	}
	if field.HasValue {
		return "filled"
	}
	return "empty"
}
