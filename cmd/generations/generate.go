package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/batch"
	"github.com/skosovsky/generations/dispatch"
)

const generateUsage = `Usage:
  generations generate --provider <name> (--message <text> | --batch <file>) [flags]

Flags:
  --config    string   Path to YAML configuration file
  --provider  string   bedrock, openai or google (required)
  --message   string   User message
  --batch     string   File with one message per line; each line is one call
  --system    string   System prompt
  --model     string   Model name or alias
  --attempts  int      Calls per message until one returns text (default 3)`

// generateFlags are the parsed arguments of the generate command.
type generateFlags struct {
	config   string
	provider generations.Provider
	message  string
	batch    string
	system   string
	model    string
	attempts int
}

func parseGenerateFlags(args []string, stderr io.Writer) (generateFlags, error) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var f generateFlags
	var provider string
	fs.StringVar(&f.config, "config", "", "path to configuration file")
	fs.StringVar(&provider, "provider", "", "provider name")
	fs.StringVar(&f.message, "message", "", "user message")
	fs.StringVar(&f.batch, "batch", "", "file with one message per line")
	fs.StringVar(&f.system, "system", "", "system prompt")
	fs.StringVar(&f.model, "model", "", "model name or alias")
	fs.IntVar(&f.attempts, "attempts", batch.DefaultAttempts, "calls per message")
	if err := parseFlags(fs, args, generateUsage, stderr); err != nil {
		return f, err
	}
	if provider == "" {
		return f, errors.New("generate command requires --provider <name>")
	}
	p, err := dispatch.ValidateProvider(provider)
	if err != nil {
		return f, err
	}
	f.provider = p
	if (f.message == "") == (f.batch == "") {
		return f, errors.New("generate command requires exactly one of --message or --batch")
	}
	if f.attempts < 1 {
		return f, fmt.Errorf("attempts %d must be at least 1", f.attempts)
	}
	return f, nil
}

// messages returns the single message, or the non-blank lines of the batch file.
func (f generateFlags) messages() ([]string, error) {
	if f.batch == "" {
		return []string{f.message}, nil
	}
	file, err := os.Open(f.batch)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer func() { _ = file.Close() }()
	var out []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return out, nil
}

// generateLine is one output record of the generate command.
type generateLine struct {
	Index  int    `json:"index"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func generate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseGenerateFlags(args, stderr)
	if err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}
	messages, err := f.messages()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger(stderr)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	return runGenerate(ctx, client, f, messages, stdout)
}

// runGenerate calls generate once per message, each with up to f.attempts tries, and writes one
// JSON line per message. It fails when any message failed.
func runGenerate(ctx context.Context, client *dispatch.Client, f generateFlags, messages []string, stdout io.Writer) error {
	report := batch.Sequential(ctx, messages, func(ctx context.Context, msg string) (any, error) {
		req := &generations.GenerateRequest{Model: f.model, System: f.system, Message: msg}
		resp, err := batch.Attempts(ctx, f.attempts, func(ctx context.Context) (*generations.Response, error) {
			return client.Generate(ctx, f.provider, req)
		})
		if err != nil {
			return nil, err
		}
		return dispatch.Result(req, resp), nil
	})

	enc := json.NewEncoder(stdout)
	for _, item := range report.Items {
		line := generateLine{Index: item.Index, Result: item.Value}
		if item.Err != nil {
			line.Error = item.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if failed := len(report.Failures()); failed > 0 {
		return fmt.Errorf("%d of %d messages failed", failed, len(messages))
	}
	return nil
}
