package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/adapters/repository/sqlstore"
	"github.com/wadjakorntonsri/engsite/pkg/app"
	"github.com/wadjakorntonsri/engsite/pkg/client"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
)

const usage = "expected 'export', 'sweep' or 'submit' subcommands"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "export":
		err = doExport(ctx, os.Stdout)
	case "sweep":
		err = doSweep(ctx)
	case "submit":
		err = doSubmit(ctx, os.Args[2:], os.Stdout)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// doExport writes every stored submission as indented JSON. Submissions
// carry no personal data, only references and routing metadata.
func doExport(ctx context.Context, w io.Writer) error {
	store, err := sqlstore.Open(ctx, config.Load().DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer store.Close()

	subs, err := store.Dump(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if subs == nil {
		subs = []domain.Submission{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(subs)
}

func doSweep(ctx context.Context) error {
	a, err := app.New(ctx, config.Load(), app.WithLogOutput(io.Discard))
	if err != nil {
		return err
	}
	defer a.Close()

	counters, keys, err := a.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("Removed %d rate limit counters and %d expired idempotency keys", counters, keys)
	return nil
}

func doSubmit(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost:8080", "site base URL")
	kind := fs.String("kind", string(domain.LeadQuotation), "quote or consultation")
	name := fs.String("name", "", "contact name")
	email := fs.String("email", "", "contact email")
	message := fs.String("message", "", "request details")
	service := fs.String("service", "", "service slug (quotes only)")
	audience := fs.String("audience", "", "startup or enterprise")
	key := fs.String("key", "", "idempotency key; generated when empty")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lead := domain.Lead{
		Kind:    domain.LeadKind(*kind),
		Name:    *name,
		Email:   *email,
		Message: *message,
		Service: *service,
	}
	if a, ok := domain.ParseAudience(*audience); ok && a.IsSegment() {
		lead.Audience = a
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.New(*baseURL, client.WithHTTPClient(&http.Client{Timeout: *timeout}))
	var (
		res *client.Result
		err error
	)
	if *key != "" {
		res, err = c.SubmitLead(ctx, lead, *key)
	} else {
		res, err = c.NewSubmission().Submit(ctx, lead)
	}

	var apiErr *client.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return fmt.Errorf("%w (retry in %ds)", err, apiErr.RetryAfter)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "reference: %s\n", res.Reference)
	if res.Message != "" {
		fmt.Fprintf(w, "message: %s\n", res.Message)
	}
	if res.Replayed {
		fmt.Fprintln(w, "(already submitted, replayed)")
	}
	return nil
}
