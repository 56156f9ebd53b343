// Package cmd provides the commands of an MPC reverse auction deployment.
//
// # Commands
//
// party: Runs one computing party. It holds shares of every bid, takes part
// in the multiplication and comparison sub-protocols and never learns a bid.
//
//	go run ./cmd/party --config=deployment.yaml --public-url=http://party1:8081 --addr=:8081
//
// auctioneer: Drives the parties. It seeds them, shares bids, runs the
// comparison tournament and stores the public record of each auction.
//
//	go run ./cmd/auctioneer seed --config=deployment.yaml
//	go run ./cmd/auctioneer bid --config=deployment.yaml --bidder=1 --amount=120
//	go run ./cmd/auctioneer run --config=deployment.yaml --timings
//	go run ./cmd/auctioneer status --config=deployment.yaml --watch
//
// # Configuration
//
// Both commands read the same YAML file via the --config flag. Command-line
// flags override config file values.
//
//	http_addr: ":8081"
//	metrics_addr: ":9090"
//	parties:
//	  - "http://party1:8081"
//	  - "http://party2:8081"
//	  - "http://party3:8081"
//	threshold: 2
//	token_secret: "shared operator secret"
//	request_timeout: 30s
//	log:
//	  format: json
//	  level: info
//	comparison:
//	  l: 8
//	  k: 8
//	  prime: "131591"
//	  repetitions: 3
//	  strategy: ztable
//	  failure_policy: abort
//	postgres:
//	  host: localhost
//	  port: 5432
//	  database: auctions
//
// Party tokens are derived from token_secret and the party URL unless the
// tokens map names one explicitly.
package cmd
