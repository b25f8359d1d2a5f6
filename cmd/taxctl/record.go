package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/models"
)

type recordCmd struct {
	kind     string
	user     string
	contract string
	token    string
	qty      string
	price    string
	fee      string
}

func (*recordCmd) Name() string     { return "record" }
func (*recordCmd) Synopsis() string { return "append one event to the ledger" }
func (*recordCmd) Usage() string {
	return `taxctl record -kind <kind> -user <id> -contract <addr> -qty <n> [-token <id>] [-price <usd>] [-fee <usd>]

  Appends one event of the given kind and prints the stored event.
`
}

func (c *recordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "", "Event kind: acquisition, disposal, trade, mint, withdraw, reward")
	f.StringVar(&c.user, "user", "", "Subject id")
	f.StringVar(&c.contract, "contract", "", "Asset contract address")
	f.StringVar(&c.token, "token", "", "Token id within the contract")
	f.StringVar(&c.qty, "qty", "", "Quantity, must be positive")
	f.StringVar(&c.price, "price", "", "Unit price in USD")
	f.StringVar(&c.fee, "fee", "0", "Fee in USD")
}

func (c *recordCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	in, err := c.input()
	if err != nil {
		return fail(err)
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer ledger.Close()

	ev, err := ledger.Tax.RecordEvent(ctx, in)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(ev); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

func (c *recordCmd) input() (models.EventInput, error) {
	in := models.EventInput{
		Kind:     c.kind,
		Subject:  c.user,
		Contract: c.contract,
		TokenID:  c.token,
	}

	qty, err := decimal.NewFromString(c.qty)
	if err != nil {
		return in, errors.NewValidationError("qty", "must be a decimal number")
	}
	in.Quantity = qty

	fee, err := decimal.NewFromString(c.fee)
	if err != nil {
		return in, errors.NewValidationError("fee", "must be a decimal number")
	}
	in.Fee = fee

	if c.price != "" {
		price, err := decimal.NewFromString(c.price)
		if err != nil {
			return in, errors.NewValidationError("price", "must be a decimal number")
		}
		in.UnitPriceUSD = &price
	}
	return in, nil
}
