// Command auctioneer drives sealed-bid reverse auctions across a roster of
// MPC parties.
//
// # Commands
//
// seed: Send the threshold, prime and roster to every party.
//
//	auctioneer seed --config=deployment.yaml
//
// bid: Split a bid into shares and hand one to each party.
//
//	auctioneer bid --config=deployment.yaml --bidder=1 --amount=120
//
// run: Find the lowest bid without revealing any bid.
//
//	auctioneer run --config=deployment.yaml --timings
//
// status: Show party reachability, optionally watching for changes.
//
//	auctioneer status --config=deployment.yaml --watch
//
// bidders, reset, factory-reset and history complete the set.
//
// # Configuration
//
// The auctioneer reads the same YAML file as the parties:
//
//	parties:
//	  - "http://party1:8081"
//	  - "http://party2:8081"
//	  - "http://party3:8081"
//	threshold: 2
//	token_secret: "shared operator secret"
//	comparison:
//	  l: 8
//	  k: 8
//	  prime: "131591"
//	  strategy: ztable
//	postgres:
//	  host: localhost
//	  database: auctions
//
// --parties, --threshold and --token-secret override the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flashbots/mpcauction/auction"
	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/cmd/common"
	"github.com/flashbots/mpcauction/comparison"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/markkurossi/tabulate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "seed":
		err = runSeed(ctx, args)
	case "bid":
		err = runBid(ctx, args)
	case "bidders":
		err = runBidders(ctx, args)
	case "run":
		err = runAuction(ctx, args)
	case "reset":
		err = runReset(ctx, args, false)
	case "factory-reset":
		err = runReset(ctx, args, true)
	case "status":
		err = runStatus(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`auctioneer - drive MPC reverse auctions

Usage:
  auctioneer <command> [options]

Commands:
  seed            Seed every party with threshold, prime and roster
  bid             Share a bid across the parties
  bidders         List the bidders every party knows
  run             Run an auction and print the winner
  reset           Clear bids and comparison state at every party
  factory-reset   Also clear the initial values
  status          Show party reachability (--watch to follow)
  history         List recorded auctions

Run 'auctioneer <command> --help' for command-specific options.`)
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg          *common.Config
	client       *client.Client
	orchestrator *auction.Orchestrator
	store        auction.ResultStore
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// commonFlags registers the connection flags on fs and returns a loader that
// applies them on top of the config file.
func commonFlags(fs *flag.FlagSet) func() (*env, error) {
	var (
		configPath  = fs.String("config", "", "Path to YAML config file")
		parties     = fs.String("parties", "", "Comma-separated party URLs in roster order")
		threshold   = fs.Int("threshold", 0, "Shares needed to reconstruct a bid")
		tokenSecret = fs.String("token-secret", "", "Secret the party tokens are derived from")
		logLevel    = fs.String("log-level", "warn", "Log level: debug, info, warn or error")
	)

	return func() (*env, error) {
		isFlagSet := func(name string) bool {
			found := false
			fs.Visit(func(f *flag.Flag) {
				if f.Name == name {
					found = true
				}
			})
			return found
		}

		cfg := common.DefaultConfig()
		if *configPath != "" {
			var err error
			if cfg, err = common.LoadConfig(*configPath); err != nil {
				return nil, err
			}
		}
		if isFlagSet("parties") {
			cfg.Parties = splitList(*parties)
		}
		if isFlagSet("threshold") {
			cfg.Threshold = *threshold
		}
		if isFlagSet("token-secret") {
			cfg.TokenSecret = *tokenSecret
		}
		if isFlagSet("log-level") || *configPath == "" {
			cfg.Log.Level = *logLevel
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}

		log, err := common.SetupLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		tokens, err := cfg.TokensFor(cfg.Parties)
		if err != nil {
			return nil, err
		}
		c, err := client.New(&client.Config{
			Parties: cfg.Parties,
			Tokens:  tokens,
			Timeout: cfg.RequestTimeout,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}

		var store auction.ResultStore
		if cfg.Postgres.Host != "" {
			if store, err = auction.NewPostgresStore(&cfg.Postgres); err != nil {
				return nil, err
			}
		}

		params, _ := cfg.Params()
		o, err := auction.New(&auction.Config{
			Client:    c,
			Params:    params,
			Threshold: cfg.Threshold,
			Store:     store,
			Log:       log,
		})
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, err
		}
		return &env{cfg: cfg, client: c, orchestrator: o, store: store}, nil
	}
}

func parseFlags(name string, args []string, extra func(fs *flag.FlagSet)) (*env, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	load := commonFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return load()
}

func runSeed(ctx context.Context, args []string) error {
	e, err := parseFlags("seed", args, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.orchestrator.SeedInitialValues(ctx); err != nil {
		return err
	}
	iv, err := e.orchestrator.InitialValues(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d parties with t=%d, p=0x%s\n", iv.N, iv.T, iv.P)
	return nil
}

func runBid(ctx context.Context, args []string) error {
	var (
		bidderID int
		amount   string
	)
	e, err := parseFlags("bid", args, func(fs *flag.FlagSet) {
		fs.IntVar(&bidderID, "bidder", 0, "Bidder ID (positive)")
		fs.StringVar(&amount, "amount", "", "Bid amount")
	})
	if err != nil {
		return err
	}
	defer e.Close()

	bid, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("--amount %q is not an integer", amount)
	}
	if err := e.orchestrator.SubmitBid(ctx, bidderID, bid); err != nil {
		return err
	}
	fmt.Printf("Bid of bidder %d shared across %d parties\n", bidderID, len(e.client.Parties()))
	return nil
}

func runBidders(ctx context.Context, args []string) error {
	e, err := parseFlags("bidders", args, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	ids, err := e.orchestrator.BidderIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No bidders")
		return nil
	}
	fmt.Println(strings.Trim(fmt.Sprint(ids), "[]"))
	return nil
}

func runAuction(ctx context.Context, args []string) error {
	var timings bool
	e, err := parseFlags("run", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&timings, "timings", false, "Print per-stage timings")
	})
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.orchestrator.RunAuction(ctx)
	if err != nil {
		if errors.Is(err, auction.ErrInconsistentState) {
			fmt.Fprintln(os.Stderr, "Parties disagree; run 'auctioneer reset' before the next auction.")
		}
		return err
	}

	printComparisons(os.Stdout, res.Comparisons)
	if timings {
		printStages(os.Stdout, res.Comparisons)
	}
	fmt.Printf("Winner: bidder %d\n", res.WinnerID)
	fmt.Printf("Record: %s\n", res.Record.ID)
	return nil
}

func runReset(ctx context.Context, args []string, factory bool) error {
	e, err := parseFlags("reset", args, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if factory {
		err = e.orchestrator.FactoryResetAll(ctx)
	} else {
		err = e.orchestrator.ResetAll(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Println("All parties reset")
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	var (
		watch    bool
		interval time.Duration
	)
	e, err := parseFlags("status", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&watch, "watch", false, "Keep polling and print changes")
		fs.DurationVar(&interval, "interval", 5*time.Second, "Polling interval for --watch")
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if !watch {
		printStatus(os.Stdout, e.client.Status(ctx))
		return nil
	}

	poller := e.client.NewPoller(interval, func(party string, status client.PartyStatus) {
		if status != client.StatusChecking {
			fmt.Printf("%s  %-40s %s\n", time.Now().Format(time.TimeOnly), party, status)
		}
	})
	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	var limit int
	e, err := parseFlags("history", args, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "limit", 20, "Number of records to show (0 for all)")
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if e.store == nil {
		return errors.New("history needs a postgres section in the config")
	}
	records, err := e.orchestrator.History(ctx, limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, records)
	return nil
}

func printStatus(w io.Writer, outcomes client.Outcomes[protocol.StatusResponse]) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Party").SetAlign(tabulate.ML)
	tab.Header("Status").SetAlign(tabulate.ML)
	tab.Header("ID").SetAlign(tabulate.MR)

	for _, o := range outcomes {
		row := tab.Row()
		row.Column(o.Party)
		if o.Err != nil {
			row.Column(o.Err.Error()).SetFormat(tabulate.FmtItalic)
			row.Column("")
			continue
		}
		row.Column(o.Value.Status)
		if o.Value.ID == 0 {
			row.Column("unseeded").SetFormat(tabulate.FmtItalic)
		} else {
			row.Column(fmt.Sprintf("%d", o.Value.ID))
		}
	}
	tab.Print(w)
}

func printComparisons(w io.Writer, comparisons []*comparison.Result) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("#").SetAlign(tabulate.MR)
	tab.Header("Winner").SetAlign(tabulate.MR)
	tab.Header("Contender").SetAlign(tabulate.MR)
	tab.Header("Outcome").SetAlign(tabulate.ML)

	for i, c := range comparisons {
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", i+1))
		row.Column(fmt.Sprintf("%d", c.WinnerID))
		row.Column(fmt.Sprintf("%d", c.ContenderID))
		if c.ContenderWins() {
			row.Column("contender takes over").SetFormat(tabulate.FmtBold)
		} else {
			row.Column("winner stays")
		}
	}
	tab.Print(w)
}

func printStages(w io.Writer, comparisons []*comparison.Result) {
	var order []string
	totals := make(map[string]*comparison.Stage)
	var total time.Duration
	for _, c := range comparisons {
		for _, s := range c.Stages {
			acc, ok := totals[s.Name]
			if !ok {
				acc = &comparison.Stage{Name: s.Name}
				totals[s.Name] = acc
				order = append(order, s.Name)
			}
			acc.Calls += s.Calls
			acc.Duration += s.Duration
			total += s.Duration
		}
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Stage").SetAlign(tabulate.ML)
	tab.Header("Calls").SetAlign(tabulate.MR)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)

	var calls int
	for _, name := range order {
		s := totals[name]
		calls += s.Calls
		row := tab.Row()
		row.Column(name)
		row.Column(fmt.Sprintf("%d", s.Calls))
		row.Column(s.Duration.Round(time.Millisecond).String())
		row.Column(fmt.Sprintf("%.2f%%", float64(s.Duration)/float64(max(total, 1))*100))
	}
	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(fmt.Sprintf("%d", calls)).SetFormat(tabulate.FmtBold)
	row.Column(total.Round(time.Millisecond).String()).SetFormat(tabulate.FmtBold)
	row.Column("")
	tab.Print(w)
}

func printHistory(w io.Writer, records []*auction.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No auctions recorded")
		return
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Record").SetAlign(tabulate.ML)
	tab.Header("Finished").SetAlign(tabulate.ML)
	tab.Header("Winner").SetAlign(tabulate.MR)
	tab.Header("Bidders").SetAlign(tabulate.MR)
	tab.Header("Strategy").SetAlign(tabulate.ML)

	for _, r := range records {
		row := tab.Row()
		row.Column(r.ID[:16])
		row.Column(r.FinishedAt.Format(time.DateTime))
		row.Column(fmt.Sprintf("%d", r.WinnerID))
		row.Column(fmt.Sprintf("%d", len(r.Bidders)))
		row.Column(r.Strategy)
	}
	tab.Print(w)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
