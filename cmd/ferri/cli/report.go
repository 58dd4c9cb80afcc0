package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// Exit codes returned by ReportCommand.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitDiagnostics = 10
)

// Generator produces reports.
type Generator interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Result, error)
}

// ReportCLI renders a single report from the command line.
type ReportCLI struct {
	engine Generator
}

// NewReportCLI constructs the helper.
func NewReportCLI(engine Generator) *ReportCLI {
	return &ReportCLI{engine: engine}
}

// ReportOptions defines the flags of the report command.
type ReportOptions struct {
	TenantID         string
	Kind             string
	From             string
	To               string
	AsOf             string
	CriticalFraction string
	TopN             int
	JSONOutput       bool
	Stdout           io.Writer
	Stderr           io.Writer
}

// ReportCommand generates the report and prints it. A report carrying
// diagnostics exits with ExitDiagnostics so scripts can alert on it.
func (c *ReportCLI) ReportCommand(ctx context.Context, opts ReportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	req, err := buildRequest(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return ExitError
	}
	res, err := c.engine.Generate(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		return ExitError
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderHuman(opts.Stdout, res)
	}
	if len(res.Diagnostics) > 0 {
		return ExitDiagnostics
	}
	return ExitOK
}

func buildRequest(opts ReportOptions) (reporting.Request, error) {
	if strings.TrimSpace(opts.TenantID) == "" {
		return reporting.Request{}, errors.New("--tenant is required")
	}
	req := reporting.Request{
		TenantID: strings.TrimSpace(opts.TenantID),
		Kind:     reporting.Kind(strings.TrimSpace(opts.Kind)),
		Options:  reporting.Options{TopN: opts.TopN},
	}
	var err error
	if req.Window.From, err = parseFlagDate("--from", opts.From); err != nil {
		return req, err
	}
	if req.Window.To, err = parseFlagDate("--to", opts.To); err != nil {
		return req, err
	}
	if req.AsOf, err = parseFlagDate("--as-of", opts.AsOf); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(opts.CriticalFraction); raw != "" {
		f, err := decimal.NewFromString(raw)
		if err != nil {
			return req, fmt.Errorf("invalid --critical-fraction %q", raw)
		}
		req.Options.CriticalFraction = &f
	}
	return req, nil
}

func parseFlagDate(flag, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q (expected YYYY-MM-DD)", flag, value)
	}
	return t, nil
}

func renderHuman(out io.Writer, res *reporting.Result) {
	_, _ = fmt.Fprintf(out, "%s for %s (%s) window %s\n", res.Kind, res.TenantID, res.Currency.Code, res.Window)
	_, _ = fmt.Fprintf(out, "%d row(s)\n", res.RowCount())
	if len(res.Diagnostics) == 0 {
		_, _ = fmt.Fprintln(out, "No diagnostics.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d diagnostic(s):\n", len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		if d.Ref != "" {
			_, _ = fmt.Fprintf(out, " - %s [%s] %s\n", d.Code, d.Ref, d.Message)
			continue
		}
		_, _ = fmt.Fprintf(out, " - %s %s\n", d.Code, d.Message)
	}
}
