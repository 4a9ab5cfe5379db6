// Package cli implements the pdfseal command line: batch or single-signer
// signing, form field listing and form filling.
package cli

import (
	"fmt"
	"os"
)

// osExit is swapped out by tests.
var osExit = os.Exit

func Usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  sign    Sign PDF signature fields")
	fmt.Println("  fields  List the form fields of a PDF file")
	fmt.Println("  fill    Fill text form fields")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

// Run dispatches os.Args to a subcommand.
func Run() {
	if len(os.Args) < 2 {
		Usage()
		return
	}

	switch os.Args[1] {
	case "sign":
		SignCommand()
	case "fields":
		FieldsCommand()
	case "fill":
		FillCommand()
	case "-h", "--help", "help":
		Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		Usage()
	}
}
