package cli

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/openbackendHQ/pdfseal"
	"github.com/openbackendHQ/pdfseal/config"
	"github.com/openbackendHQ/pdfseal/keys"
	"github.com/openbackendHQ/pdfseal/sign"
)

var (
	In, Out, ConfigPath             string
	Field, Image                    string
	Cert, Key, Chain, P12, Password string
	InfoName, InfoEmail             string
	InfoReason, InfoLocation        string
	TSA, Digest                     string
	ByGroup                         bool
)

func SignCommand() {
	signFlags := flag.NewFlagSet("sign", flag.ExitOnError)

	signFlags.StringVar(&In, "in", "", "Input PDF file")
	signFlags.StringVar(&Out, "out", "", "Output PDF file")
	signFlags.StringVar(&ConfigPath, "config", "", "YAML run configuration for batch signing")
	signFlags.StringVar(&Field, "field", "", "Signature field to sign (single-signer mode)")
	signFlags.StringVar(&Image, "image", "", "Signature appearance image (PNG, JPEG, GIF, BMP, TIFF or WebP)")
	signFlags.StringVar(&Cert, "cert", "", "PEM certificate file")
	signFlags.StringVar(&Key, "key", "", "PEM private key file (PKCS#1, PKCS#8 or EC)")
	signFlags.StringVar(&Chain, "chain", "", "PEM certificate chain file")
	signFlags.StringVar(&P12, "p12", "", "PKCS#12 bundle, instead of cert/key/chain")
	signFlags.StringVar(&Password, "password", "", "PKCS#12 bundle password")
	signFlags.StringVar(&InfoName, "name", "", "Name of the signatory")
	signFlags.StringVar(&InfoEmail, "email", "", "Contact email of the signatory")
	signFlags.StringVar(&InfoReason, "reason", "", "Reason for signing")
	signFlags.StringVar(&InfoLocation, "location", "", "Location of the signatory")
	signFlags.StringVar(&TSA, "tsa", "", "URL for an RFC 3161 Time-Stamp Authority")
	signFlags.StringVar(&Digest, "digest", "sha256", "Digest algorithm (sha1, sha256, sha384, sha512)")
	signFlags.BoolVar(&ByGroup, "group", false, "Match fields by signer group instead of signer id")

	signFlags.Usage = func() {
		fmt.Printf("Usage: %s sign [options] -in input.pdf -out output.pdf\n\n", os.Args[0])
		fmt.Println("Sign the matching empty signature fields of a PDF file")
		fmt.Println("\nOptions:")
		signFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s sign -config signers.yaml -in input.pdf -out output.pdf\n", os.Args[0])
		fmt.Printf("  %s sign -field Signature1 -cert cert.pem -key key.pem -in input.pdf -out output.pdf\n", os.Args[0])
		fmt.Printf("  %s sign -field Signature1 -p12 signer.p12 -password secret -in input.pdf -out output.pdf\n", os.Args[0])
	}

	if err := signFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse sign flags: %v", err)
		osExit(1)
		return
	}

	if In == "" || Out == "" {
		signFlags.Usage()
		osExit(1)
		return
	}

	SignPDF()
}

// SignPDF runs the sign command from the package flag variables; tests swap
// it out.
var SignPDF = signPDFImpl

func signPDFImpl() {
	var (
		inputs []pdfseal.SignerInput
		fill   map[string]string
		debug  bool
	)

	if ConfigPath != "" {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
		inputs, err = ConfigInputs(cfg)
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
		fill = cfg.Fill
		debug = cfg.Debug()
	} else {
		input, err := FlagInput()
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
		inputs = []pdfseal.SignerInput{*input}
	}

	doc, err := pdfseal.OpenFile(In)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	logFlags := log.LstdFlags
	if debug {
		logFlags |= log.Lshortfile
	}
	doc.SetLogger(log.New(os.Stderr, "pdfseal: ", logFlags))

	if len(fill) > 0 {
		if err := doc.Fill(fill); err != nil {
			log.Println(err)
			osExit(1)
			return
		}
	}

	outputFile, err := os.Create(Out)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	defer func() {
		if err := outputFile.Close(); err != nil {
			log.Printf("error closing output file: %v", err)
		}
	}()

	var result *pdfseal.Result
	if ByGroup {
		result, err = doc.SignAllByGroup(inputs, outputFile)
	} else {
		result, err = doc.SignAll(inputs, outputFile)
	}
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	for _, sig := range result.Signatures {
		log.Printf("signed field %q for %s (byte range %v)", sig.Field, sig.Signer, sig.ByteRange)
	}
	for _, fieldErr := range result.FieldErrors {
		log.Printf("warning: %v", fieldErr)
	}
	if len(result.Signatures) == 0 && len(result.FieldErrors) == 0 {
		log.Println("no matching empty signature fields; output equals input")
	}
	log.Println("Signed PDF written to " + Out)
}

// ConfigInputs maps the signer entries of a run configuration onto signer
// inputs, loading key material and appearance images from disk.
func ConfigInputs(cfg *config.Config) ([]pdfseal.SignerInput, error) {
	tsa := sign.TSA{
		URL:      cfg.TSA.URL,
		Username: cfg.TSA.Username,
		Password: cfg.TSA.Password,
	}

	inputs := make([]pdfseal.SignerInput, 0, len(cfg.Signers))
	for i := range cfg.Signers {
		entry := &cfg.Signers[i]

		var material *keys.Material
		var err error
		if entry.PKCS12 != "" {
			material, err = keys.LoadPKCS12(entry.PKCS12, entry.Password)
		} else {
			material, err = keys.LoadPEM(entry.Certificate, entry.Key, entry.Chain)
		}
		if err != nil {
			return nil, fmt.Errorf("signer %q: %w", entry.ID, err)
		}

		input := pdfseal.SignerInput{
			ID:                entry.ID,
			GroupID:           entry.Group,
			Name:              entry.Name,
			Email:             entry.Email,
			Signer:            material.Signer,
			Certificate:       material.Certificate,
			CertificateChains: material.CertificateChains,
			DigestAlgorithm:   cfg.DigestAlgorithm(),
			TSA:               tsa,
		}
		if entry.Image != "" {
			input.Image, err = os.ReadFile(entry.Image)
			if err != nil {
				return nil, fmt.Errorf("signer %q: %w", entry.ID, err)
			}
		}

		inputs = append(inputs, input)
	}
	return inputs, nil
}

// FlagInput builds the single-signer input from the package flag variables.
func FlagInput() (*pdfseal.SignerInput, error) {
	if Field == "" {
		return nil, errors.New("single-signer mode requires -field (or use -config)")
	}

	var material *keys.Material
	var err error
	switch {
	case P12 != "":
		material, err = keys.LoadPKCS12(P12, Password)
	case Cert != "" && Key != "":
		material, err = keys.LoadPEM(Cert, Key, Chain)
	default:
		return nil, errors.New("signing requires -cert and -key, or -p12")
	}
	if err != nil {
		return nil, err
	}

	hash, ok := config.DigestByName(Digest)
	if !ok {
		return nil, fmt.Errorf("unknown digest algorithm %q", Digest)
	}

	input := &pdfseal.SignerInput{
		ID:                Field,
		Name:              InfoName,
		Email:             InfoEmail,
		Reason:            InfoReason,
		Location:          InfoLocation,
		Signer:            material.Signer,
		Certificate:       material.Certificate,
		CertificateChains: material.CertificateChains,
		DigestAlgorithm:   hash,
		TSA:               sign.TSA{URL: TSA},
	}
	if ByGroup {
		input.GroupID = Field
	}
	if Image != "" {
		input.Image, err = os.ReadFile(Image)
		if err != nil {
			return nil, err
		}
	}
	return input, nil
}
