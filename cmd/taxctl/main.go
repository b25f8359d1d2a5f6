// Command taxctl runs ledger reports and maintenance against the configured store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/google/subcommands"

	"github.com/tax-ledger/internal/app"
	"github.com/tax-ledger/internal/config"
	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/types"
)

var commands = []subcommands.Command{
	&summaryCmd{},
	&exportCmd{},
	&recordCmd{},
	&feesCmd{},
	&revenueCmd{},
	&backfillCmd{},
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// openLedger loads configuration and wires the services. Logs go to stderr
// so stdout stays machine readable.
func openLedger(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelWarn
	}
	logger := logging.NewLogger(level, logging.FormatText)
	logger.SetOutput(os.Stderr)

	return app.Build(ctx, cfg, logger)
}

// fail prints err and picks the exit status: bad input is a usage error
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.IsCode(err, errors.CodeValidation) ||
		errors.IsCode(err, errors.CodeMissingSubject) ||
		errors.IsCode(err, errors.CodeMissingParameter) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitSubjects parses a comma separated -user value
func splitSubjects(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// windowFlags adds -from and -to to a command
type windowFlags struct {
	from, to string
}

func (w *windowFlags) register(f *flag.FlagSet) {
	f.StringVar(&w.from, "from", "", "Inclusive start (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&w.to, "to", "", "Inclusive end (YYYY-MM-DD or RFC 3339)")
}

func (w *windowFlags) window() (types.TimeWindow, error) {
	from, err := types.ParseTimeBound(w.from)
	if err != nil {
		return types.TimeWindow{}, errors.NewValidationError("from", err.Error())
	}
	to, err := types.ParseTimeBound(w.to)
	if err != nil {
		return types.TimeWindow{}, errors.NewValidationError("to", err.Error())
	}
	return types.TimeWindow{From: from, To: to}, nil
}
