package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/skosovsky/generations/manifest"
)

const integrateUsage = `Usage:
  generations integrate --template <file> [--data <json>]

Flags:
  --template string   Template document (YAML or JSON)
  --data     string   JSON object with the placeholder values (default {})`

func integrate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("integrate", flag.ContinueOnError)
	var path, raw string
	fs.StringVar(&path, "template", "", "template document")
	fs.StringVar(&raw, "data", "{}", "placeholder values as a JSON object")
	if err := parseFlags(fs, args, integrateUsage, stderr); err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}
	if path == "" {
		return errors.New("integrate command requires --template <file>")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("parse --data: %w", err)
	}
	doc, err := manifest.ParseFile(path)
	if err != nil {
		return err
	}
	out, err := doc.Render(data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
