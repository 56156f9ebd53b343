// Command party runs one reference MPC party.
//
// A party stores its shares of every bid and evaluates the primitives the
// auctioneer sequences. It learns the threshold, the prime and the roster
// when the auctioneer seeds it, and then talks to the other parties directly
// to reshare products and open values.
//
// # Configuration File
//
//	http_addr: ":8081"
//	public_url: "http://party1:8081"
//	metrics_addr: ":9091"
//	token_secret: "shared operator secret"
//	log:
//	  format: json
//	  level: info
//
// The party's own bearer token is --token, token in the file, or derived
// from token_secret and public_url. Tokens for the other parties come from
// the tokens map or the same secret.
//
// # Usage
//
//	go run ./cmd/party --config=party1.yaml
//	go run ./cmd/party --addr=:8081 --token=secret --metrics-addr=:9091
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flashbots/mpcauction/api/httpserver"
	"github.com/flashbots/mpcauction/cmd/common"
	"github.com/flashbots/mpcauction/server"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		publicURL   = flag.String("public-url", "", "URL other parties use to reach this party")
		token       = flag.String("token", "", "Bearer token callers must present")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		corsOrigins = flag.String("cors-origins", "", "Comma-separated allowed browser origins")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if isFlagSet("addr") {
		cfg.HTTPAddr = *addr
	}
	if isFlagSet("public-url") {
		cfg.PublicURL = *publicURL
	}
	if isFlagSet("token") {
		cfg.Token = *token
	}
	if isFlagSet("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}
	if isFlagSet("cors-origins") {
		cfg.CORSOrigins = splitList(*corsOrigins)
	}
	if isFlagSet("log-format") {
		cfg.Log.Format = *logFormat
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config) error {
	log, err := common.SetupLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	ownToken, err := cfg.OwnToken()
	if err != nil {
		return fmt.Errorf("deriving token: %w", err)
	}
	if ownToken == "" {
		log.Warn("no bearer token configured, the party API is unauthenticated")
	}

	peerFactory := func(roster []string, self int) (server.Peers, error) {
		tokens, err := cfg.TokensFor(roster)
		if err != nil {
			return nil, err
		}
		return server.NewHTTPPeerFactory(tokens, cfg.RequestTimeout, log)(roster, self)
	}

	party := server.NewParty(&server.PartyConfig{NewPeers: peerFactory, Log: log})
	handler := server.NewHandler(&server.HandlerConfig{Party: party, Token: ownToken, Log: log})

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		CORSOrigins:              cfg.CORSOrigins,
		Log:                      log,
		DrainDuration:            time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              cfg.RequestTimeout,
		WriteTimeout:             cfg.RequestTimeout,
	}, handler)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.RunInBackground()
	<-ctx.Done()

	log.Info("shutting down party")
	srv.Shutdown()
	return nil
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
