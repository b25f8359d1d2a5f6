package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type feesCmd struct {
	windowFlags
}

func (*feesCmd) Name() string     { return "fees" }
func (*feesCmd) Synopsis() string { return "print marketplace fee totals" }
func (*feesCmd) Usage() string {
	return `taxctl fees [-from <date>] [-to <date>]
`
}

func (c *feesCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *feesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	window, err := c.window()
	if err != nil {
		return fail(err)
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	stats, err := ledger.Admin.GetFeeStats(ctx, window)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(stats); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type revenueCmd struct {
	windowFlags
}

func (*revenueCmd) Name() string     { return "revenue" }
func (*revenueCmd) Synopsis() string { return "print the fee revenue split" }
func (*revenueCmd) Usage() string {
	return `taxctl revenue [-from <date>] [-to <date>]

  Splits fees collected in the window into the dev, protocol and staker
  shares, with the reserve cut taken from the protocol share.
`
}

func (c *revenueCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *revenueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	window, err := c.window()
	if err != nil {
		return fail(err)
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	split, err := ledger.Admin.GetRevenueSplit(ctx, window)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(split); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type backfillCmd struct {
	windowFlags
	checkOnly bool
}

func (*backfillCmd) Name() string { return "backfill-fees" }
func (*backfillCmd) Synopsis() string {
	return "copy ledger fee events into the analytics mirror"
}
func (*backfillCmd) Usage() string {
	return `taxctl backfill-fees [-from <date>] [-to <date>] [-check]

  Requires FEE_ANALYTICS_BACKEND=clickhouse. With -check, only compares
  ledger and mirror totals.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.checkOnly, "check", false, "Compare totals without copying")
}

func (c *backfillCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	window, err := c.window()
	if err != nil {
		return fail(err)
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	if ledger.Checker == nil {
		return fail(fmt.Errorf("no fee mirror configured"))
	}

	if !c.checkOnly {
		res, err := ledger.Checker.Backfill(ctx, window)
		if err != nil {
			return fail(err)
		}
		if err := printJSON(res); err != nil {
			return fail(err)
		}
	}

	check, err := ledger.Checker.CheckFees(ctx, window)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(check); err != nil {
		return fail(err)
	}
	if !check.Consistent {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
