package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"splitledger/internal/amqp"
	"splitledger/internal/backend"
	"splitledger/internal/cli"
	"splitledger/internal/log"
	"splitledger/internal/price"
	"splitledger/internal/services"
	"splitledger/internal/storage"
)

const usage = `Usage: splitledger [flags] <command> [arguments]

Commands:
  status                                   show the connected account
  register <name>                          register the connected account
  rename <name>                            change the registered name
  add-expense -label <label> <share>...    record an expense; share is address:paid:owed in ETH
  people                                   list registered people and net balances
  expenses                                 list expenses
  overdue                                  list your debts and which can be settled
  settle                                   pay overdue debts one by one after confirmation
  history [-limit n]                       show recent settlement attempts

Flags:
`

func main() {
	cli.LoadEnvFile()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app is everything one command invocation needs.
type app struct {
	session *services.Session
	journal *storage.SQLiteRepository
	printer *cli.Printer
	money   cli.Money
	in      io.Reader
	out     io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("splitledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	noFiat := fs.Bool("no-fiat", false, "do not convert amounts to fiat")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger := cli.SetupLogger(log.ComponentCLI, stderr)
	ctx, stop := cli.SignalContext(ctx)
	defer stop()

	a, cleanup, err := connect(ctx, logger, !*noFiat, stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// connect wires config, ledger, journal, event bus and session, then enters
// the session with the configured account.
func connect(ctx context.Context, logger *log.Logger, fiat bool, stdin io.Reader, stdout io.Writer) (*app, func(), error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	bcfg, err := backend.FromAppConfig(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { _ = res.Cleanup() })

	journal, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { _ = journal.Close() })

	opts := []services.SessionOption{
		services.WithJournal(journal),
		services.WithSessionLogger(logger.WithComponent(log.ComponentSession).Slog()),
	}
	if cfg.AMQPEnabled() {
		bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events only feed the worker; the ledger stays authoritative.
			logger.Warn("AMQP unavailable, ledger events will not be published", "error", err)
		} else {
			closers = append(closers, func() { _ = bus.Close() })
			opts = append(opts, services.WithPublisher(bus))
		}
	}

	session := services.NewSession(services.SessionConfig{
		Reader:        services.ReaderConfig{Concurrency: cfg.ReaderConcurrency},
		TxWaitTimeout: cfg.TxWaitTimeout,
	}, opts...)
	if err := session.OnAccountChanged(ctx, res.Ledger); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	var money cli.Money
	if fiat && cfg.PriceAPIURL != "" {
		oracle := price.NewClient(price.Config{BaseURL: cfg.PriceAPIURL, CacheTTL: cfg.PriceCacheTTL},
			logger.WithComponent(log.ComponentPrice).Slog())
		// One lookup warms the cache; without a quote amounts are shown in ETH only.
		if _, err := oracle.EtherPrice(ctx, cfg.PriceFiat); err != nil {
			logger.Warn("Ether price unavailable, showing ETH only", "fiat", cfg.PriceFiat, "error", err)
		} else {
			money = cli.Money{Oracle: oracle, Fiat: cfg.PriceFiat}
		}
	}

	return &app{
		session: session,
		journal: journal,
		printer: cli.NewPrinter(stdout, money),
		money:   money,
		in:      stdin,
		out:     stdout,
	}, cleanup, nil
}
