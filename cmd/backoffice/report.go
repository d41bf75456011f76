package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/ledger/reports"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

type reportOptions struct {
	from     string
	to       string
	accounts []string
	codeFrom string
	codeTo   string
	year     int
}

func (o reportOptions) request() (reports.Request, error) {
	var req reports.Request
	from, err := vouchers.ParseDate(o.from)
	if err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	to, err := vouchers.ParseDate(o.to)
	if err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	req.From, req.To = from, to
	for _, raw := range o.accounts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("--accounts: %q: %w", raw, err)
		}
		req.AccountIDs = append(req.AccountIDs, id)
	}
	req.CodeFrom, req.CodeTo = o.codeFrom, o.codeTo
	if o.year != 0 {
		year := o.year
		req.Year = &year
	}
	return req, nil
}

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build ledger reports and print them as JSON",
	}
	cmd.AddCommand(
		reportSubcommand("activity", "Per-account activity with running totals", func(ctx context.Context, svc *reports.Service, req reports.Request) (any, error) {
			return svc.Activity(ctx, req)
		}),
		reportSubcommand("audit-trail", "Voucher-grouped audit trail", func(ctx context.Context, svc *reports.Service, req reports.Request) (any, error) {
			return svc.AuditTrail(ctx, req)
		}),
	)
	return cmd
}

func reportSubcommand(name, short string, build func(context.Context, *reports.Service, reports.Request) (any, error)) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			_, svc := rt.ledgerServices(nil)
			out, err := build(cmd.Context(), svc, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.from, "from", "", "first day of the window (YYYY-MM-DD)")
	flags.StringVar(&opts.to, "to", "", "last day of the window (YYYY-MM-DD)")
	flags.StringSliceVar(&opts.accounts, "accounts", nil, "account ids; overrides the code range")
	flags.StringVar(&opts.codeFrom, "code-from", "", "lowest account code")
	flags.StringVar(&opts.codeTo, "code-to", "", "highest account code")
	flags.IntVar(&opts.year, "year", 0, "prepend this fiscal year's beginning balance")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
