// Command inspect parses a local file the way the gateway does and prints the parsed document
// together with a summary, without touching any store or queue.
//
//	inspect [-offline] [-mime type] <file>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"insight-agents/internal/app"
	"insight-agents/internal/config"
	"insight-agents/internal/document"
	"insight-agents/internal/heuristic"
	"insight-agents/internal/logger"
	"insight-agents/internal/orchestrator"
	"insight-agents/internal/parser"
	"insight-agents/internal/sample"
	"insight-agents/internal/summary"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
}

type report struct {
	Metadata    document.Metadata `json:"metadata"`
	Description string            `json:"file_type_description"`
	Tier        orchestrator.Tier `json:"tier"`
	Summary     *summary.Result   `json:"summary"`
	Error       string            `json:"error,omitempty"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	flags.SetOutput(stderr)
	offline := flags.Bool("offline", false, "summarize with the heuristic rules only, never calling a model")
	mimeType := flags.String("mime", "", "MIME type to report for the file (default: none)")
	verbose := flags.Bool("v", false, "log to stderr")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: inspect [-offline] [-mime type] [-v] <file>")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("exactly one file is required")
	}
	path := flags.Arg(0)
	name := filepath.Base(path)

	if err := parser.CheckAccepted(name, *mimeType); err != nil {
		return err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := parser.New().Parse(parser.Input{Buffer: buf, Filename: name, MIMEType: *mimeType})
	if err != nil {
		return err
	}
	meta := document.NewMetadata(doc, name, int64(len(buf)), time.Now())

	rep := report{Metadata: meta, Description: doc.Description}
	if *offline {
		s := heuristic.Summarize(meta, doc.Data)
		rep.Tier, rep.Summary = orchestrator.TierHeuristic, &s
	} else {
		out, err := summarizeOnline(ctx, meta, doc.Data, *verbose, stderr)
		if err != nil {
			return err
		}
		rep.Tier, rep.Summary = out.Tier, out.Summary
		if out.Err != nil {
			rep.Error = out.Err.Error()
		}
	}

	// Large payloads are cut for display; the cut text is no longer valid JSON.
	data, err := sample.JSON(doc.Data, sample.LargeBudget)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "\nraw_parsed_data:\n%s\n", data)
	return err
}

// summarizeOnline runs the full fallback ladder with the configured model, backed by in-process
// collaborators so no external services are needed.
func summarizeOnline(ctx context.Context, meta document.Metadata, data document.Data, verbose bool, stderr io.Writer) (orchestrator.Outcome, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return orchestrator.Outcome{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	cfg.StoreProvider, cfg.QueueProvider, cfg.RedisAddr = "memory", "memory", ""

	log := logger.Discard()
	if verbose {
		log = logger.NewWithWriter(stderr, "inspect", cfg.LogLevel)
	}
	deps, err := app.BuildWith(cfg, log)
	if err != nil {
		return orchestrator.Outcome{}, err
	}
	defer deps.Close()
	return deps.Orchestrator.Summarize(ctx, meta, data), nil
}
