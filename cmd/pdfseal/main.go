// Command pdfseal signs the form fields of PDF documents.
//
// Usage:
//
//	pdfseal <command> [options] <args>
//
// Commands:
//
//	sign    Sign PDF signature fields, in batch from a YAML configuration
//	        or with a single signer from flags
//	fields  List the form fields of a PDF file
//	fill    Fill text form fields
//
// Examples:
//
//	# Batch-sign from a YAML configuration
//	pdfseal sign -config signers.yaml -in input.pdf -out output.pdf
//
//	# Sign a single field with PEM material
//	pdfseal sign -field Signature1 -cert cert.pem -key key.pem -in input.pdf -out output.pdf
//
//	# List fields
//	pdfseal fields document.pdf
package main

import "github.com/openbackendHQ/pdfseal/cli"

func main() {
	cli.Run()
}
