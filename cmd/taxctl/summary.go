package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/tax-ledger/internal/errors"
)

type summaryCmd struct {
	users  string
	assets bool
}

func (*summaryCmd) Name() string { return "summary" }
func (*summaryCmd) Synopsis() string {
	return "print realized gains and the deduction for one or more subjects"
}
func (*summaryCmd) Usage() string {
	return `taxctl summary -user <id>[,<id>...] [-assets]

  Replays each subject's ledger and prints the rounded tax summary as JSON.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.users, "user", "", "Subject id, or a comma separated list")
	f.BoolVar(&c.assets, "assets", false, "Include the per-asset breakdown")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	subjects := splitSubjects(c.users)
	if len(subjects) == 0 {
		return fail(errors.NewMissingSubjectError())
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	if len(subjects) == 1 {
		summary, err := ledger.Tax.GetSummary(ctx, subjects[0], c.assets)
		if err != nil {
			return fail(err)
		}
		if err := printJSON(summary); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	summaries, err := ledger.Tax.GetSummaries(ctx, subjects, c.assets)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(summaries); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type exportCmd struct {
	user   string
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write a subject's realized gains as CSV" }
func (*exportCmd) Usage() string {
	return `taxctl export -user <id> [-o <file>]

  Writes one CSV row per disposal. Defaults to stdout.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Subject id")
	f.StringVar(&c.output, "o", "", "Output file (defaults to stdout)")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		return fail(errors.NewMissingSubjectError())
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	var w io.Writer = os.Stdout
	if c.output != "" {
		file, err := os.Create(c.output)
		if err != nil {
			return fail(err)
		}
		defer file.Close()
		w = file
	}

	if err := ledger.Tax.ExportCSV(ctx, c.user, w); err != nil {
		return fail(err)
	}
	if c.output != "" {
		fmt.Fprintf(os.Stderr, "wrote %s\n", c.output)
	}
	return subcommands.ExitSuccess
}
