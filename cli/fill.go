package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/openbackendHQ/pdfseal"
	"github.com/openbackendHQ/pdfseal/config"
)

// SetFlag collects repeatable -set name=value flags.
type SetFlag map[string]string

func (s SetFlag) String() string {
	pairs := make([]string, 0, len(s))
	for name, value := range s {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (s SetFlag) Set(value string) error {
	name, fieldValue, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	s[name] = fieldValue
	return nil
}

func FillCommand() {
	fillFlags := flag.NewFlagSet("fill", flag.ExitOnError)

	values := make(SetFlag)
	var in, out, configPath string
	fillFlags.StringVar(&in, "in", "", "Input PDF file")
	fillFlags.StringVar(&out, "out", "", "Output PDF file")
	fillFlags.StringVar(&configPath, "config", "", "YAML run configuration providing a fill map")
	fillFlags.Var(values, "set", "Field value as name=value (repeatable)")

	fillFlags.Usage = func() {
		fmt.Printf("Usage: %s fill [options] -in input.pdf -out output.pdf\n\n", os.Args[0])
		fmt.Println("Fill text form fields and write the result as an incremental update")
		fmt.Println("\nOptions:")
		fillFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s fill -set FullName=\"Jane Doe\" -set City=Rotterdam -in input.pdf -out output.pdf\n", os.Args[0])
		fmt.Printf("  %s fill -config run.yaml -in input.pdf -out output.pdf\n", os.Args[0])
	}

	if err := fillFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse fill flags: %v", err)
		osExit(1)
		return
	}

	if in == "" || out == "" {
		fillFlags.Usage()
		osExit(1)
		return
	}

	FillPDF(in, out, configPath, values)
}

// FillPDF runs the fill command; tests swap it out.
var FillPDF = fillPDFImpl

func fillPDFImpl(in, out, configPath string, values map[string]string) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
		// Explicit -set values override the config fill map.
		merged := make(map[string]string, len(cfg.Fill)+len(values))
		for name, value := range cfg.Fill {
			merged[name] = value
		}
		for name, value := range values {
			merged[name] = value
		}
		values = merged
	}

	if len(values) == 0 {
		log.Println("nothing to fill: pass -set name=value or a config with a fill map")
		osExit(1)
		return
	}

	doc, err := pdfseal.OpenFile(in)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	if err := doc.Fill(values); err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	if err := os.WriteFile(out, doc.Bytes(), 0o644); err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	log.Println("Filled PDF written to " + out)
}
