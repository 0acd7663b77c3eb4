package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/skosovsky/generations/adapter/bedrock"
	"github.com/skosovsky/generations/adapter/gemini"
	"github.com/skosovsky/generations/adapter/openai"
	"github.com/skosovsky/generations/config"
	"github.com/skosovsky/generations/dispatch"
)

const usage = `generations routes chat, embedding and speech calls to bedrock, openai or google.

Usage:
  generations <command> [flags]

Commands:
  serve      Start the HTTP server
  generate   Run one generate call, or one per line of a batch file
  integrate  Render a template document with JSON data

Flags:
  -h, --help  Show this help message`

// execute runs the CLI dispatcher with the provided arguments.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return printUsage(stdout)
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:], stderr)
	case "generate":
		return generate(ctx, args[1:], stdout, stderr)
	case "integrate":
		return integrate(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage(w io.Writer) error {
	_, err := fmt.Fprintln(w, strings.TrimSpace(usage))
	return err
}

// parseFlags parses args into fs. A help request is reported as errHelp.
func parseFlags(fs *flag.FlagSet, args []string, text string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, text) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return fmt.Errorf("parse %s flags: %w", fs.Name(), err)
	}
	return nil
}

var errHelp = errors.New("help requested")

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// newClient wires the three adapters from the provider sections of cfg.
func newClient(cfg config.Config, logger *slog.Logger) (*dispatch.Client, error) {
	creds, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	p := cfg.Providers
	speech := p.Bedrock.Speech
	return dispatch.New(
		dispatch.WithLogger(logger),
		dispatch.WithBedrock(bedrock.New(
			bedrock.WithCredentials(creds),
			bedrock.WithModel(p.Bedrock.Model),
			bedrock.WithEmbeddingModel(p.Bedrock.EmbeddingModel),
			bedrock.WithRegion(p.Bedrock.Region),
			bedrock.WithEndpoint(p.Bedrock.Endpoint),
			bedrock.WithEmbedConcurrency(p.Bedrock.EmbedConcurrency),
			bedrock.WithSpeechDefaults(bedrock.SpeechDefaults{
				OutputPath:   speech.OutputPath,
				Language:     speech.Language,
				OutputFormat: speech.OutputFormat,
				Voice:        speech.Voice,
				Engine:       speech.Engine,
			}),
		)),
		dispatch.WithOpenAI(openai.New(
			openai.WithCredentials(creds),
			openai.WithModel(p.OpenAI.Model),
			openai.WithEmbeddingModel(p.OpenAI.EmbeddingModel),
			openai.WithBaseURL(p.OpenAI.BaseURL),
		)),
		dispatch.WithGoogle(gemini.New(
			gemini.WithCredentials(creds),
			gemini.WithModel(p.Google.Model),
			gemini.WithEmbeddingModel(p.Google.EmbeddingModel),
			gemini.WithBaseURL(p.Google.BaseURL),
		)),
	), nil
}
