// Command wdctl runs one pipeline pass for a single wallet from the
// command line and prints the resulting trades and positions as tables —
// an operator tool for poking at the ingestion pipeline without standing
// up the HTTP surface, in the spirit of the teacher's cmd/check-balances
// and cmd/solana-rpc-test debug tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/walletdigest/wdapi/internal/api/rest"
	"github.com/walletdigest/wdapi/internal/clients/priceprovider"
	"github.com/walletdigest/wdapi/internal/clients/solanarpc"
	"github.com/walletdigest/wdapi/internal/clients/solspot"
	"github.com/walletdigest/wdapi/internal/clients/tracker"
	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
	"github.com/walletdigest/wdapi/internal/pipeline"
	"github.com/walletdigest/wdapi/internal/telemetry/otel"
)

func main() {
	wallet := flag.String("wallet", "", "wallet public key to inspect (required)")
	timeout := flag.Duration("timeout", 60*time.Second, "pipeline run timeout")
	flag.Parse()

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "usage: wdctl -wallet <base58 pubkey>")
		os.Exit(2)
	}

	pub, err := rest.ValidateWallet(*wallet)
	if err != nil {
		log.Fatalf("invalid wallet: %v", err)
	}

	rpcKey := os.Getenv("UPSTREAM_RPC_KEY")
	rpcURL := os.Getenv("UPSTREAM_RPC_URL")
	if rpcURL == "" {
		rpcURL = "https://api.mainnet-beta.solana.com"
	}
	if rpcKey == "" {
		log.Fatal("set UPSTREAM_RPC_KEY")
	}
	endpoint := fmt.Sprintf("%s?api-key=%s", rpcURL, rpcKey)

	// No telemetry exporter for a one-shot CLI run; NewAPITracker accepts a
	// nil *otel.Telemetry and degrades to untracked calls.
	apiTracker, err := tracker.NewAPITracker(&otel.Telemetry{})
	if err != nil {
		log.Fatalf("failed to create API tracker: %v", err)
	}

	rpcClient := solanarpc.New(endpoint, solanarpc.Config{
		RPS:            50,
		MaxConcurrency: 20,
		RequestTimeout: 20 * time.Second,
	}, apiTracker)

	spotKey := os.Getenv("EXTERNAL_PRICE_KEY")
	spotClient := solspot.New(spotKey, apiTracker)
	priceClient := priceprovider.New(priceprovider.Config{
		BaseURL:    os.Getenv("EXTERNAL_PRICE_URL"),
		APIKey:     spotKey,
		HeliusOnly: os.Getenv("PRICE_HELIUS_ONLY") == "true",
	}, apiTracker)

	oc := oracle.New(oracle.Config{
		SolSpotOnly:             os.Getenv("PRICE_SOL_SPOT_ONLY") != "false",
		ExternalProviderEnabled: priceClient.Enabled(),
		StaleTTL:                oracle.DefaultConfig().StaleTTL,
		SolSpotTTL:              oracle.DefaultConfig().SolSpotTTL,
	}, spotClient, priceClient)

	cfg := pipeline.DefaultConfig()
	cfg.Timeout = *timeout
	p := pipeline.New(rpcClient, oc, cfg)

	fmt.Printf("running pipeline for %s (timeout %s)...\n", pub.String(), *timeout)

	start := time.Now()
	result, err := p.Run(context.Background(), *wallet, pub, func(ev pipeline.ProgressEvent) {
		fmt.Printf("\r  %-24s %5.1f%%", ev.Phase, ev.Percentage)
	})
	fmt.Println()
	if err != nil {
		log.Fatalf("pipeline run failed: %v", err)
	}
	fmt.Printf("done in %s — %d trades, %d positions\n\n", time.Since(start).Round(time.Millisecond), len(result.Trades), len(result.Positions))

	printTrades(result.Trades)
	fmt.Println()
	printPositions(result.PositionsPnL)
	fmt.Println()
	printSummary(result.Summary)
}

func printTrades(trades []model.Trade) {
	fmt.Println("Trades:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Action", "Mint", "Amount", "USD Value", "Realized PnL", "Confidence"})
	for _, t := range trades {
		usd := "-"
		if t.ValueUSD.Valid {
			usd = t.ValueUSD.Decimal.StringFixed(2)
		}
		pnl := "-"
		if t.RealizedPnLUSD.Valid {
			pnl = colorizePnL(t.RealizedPnLUSD.Decimal.StringFixed(2), t.RealizedPnLUSD.Decimal.IsNegative())
		}
		table.Append([]string{
			t.BlockTime.Format(time.RFC3339),
			string(t.Action),
			t.PrimaryTokenMint,
			t.Amount.StringFixed(4),
			usd,
			pnl,
			string(t.Confidence),
		})
	}
	table.Render()
}

func printPositions(positions []model.PositionPnL) {
	fmt.Println("Positions:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Mint", "Balance", "Cost Basis", "Current Value", "Unrealized PnL", "Confidence"})
	for _, p := range positions {
		value := "-"
		if p.CurrentValueUSD.Valid {
			value = p.CurrentValueUSD.Decimal.StringFixed(2)
		}
		pnl := "-"
		if p.UnrealizedPnLUSD.Valid {
			pnl = colorizePnL(p.UnrealizedPnLUSD.Decimal.StringFixed(2), p.UnrealizedPnLUSD.Decimal.IsNegative())
		}
		table.Append([]string{
			p.Mint,
			p.Balance.StringFixed(4),
			p.CostBasisUSD.StringFixed(2),
			value,
			pnl,
			string(p.PriceConfidence),
		})
	}
	table.Render()
}

func printSummary(s model.PortfolioSummary) {
	value := "-"
	if s.TotalValueUSD.Valid {
		value = s.TotalValueUSD.Decimal.StringFixed(2)
	}
	pnl := "-"
	if s.TotalUnrealizedPnLUSD.Valid {
		pnl = colorizePnL(s.TotalUnrealizedPnLUSD.Decimal.StringFixed(2), s.TotalUnrealizedPnLUSD.Decimal.IsNegative())
	}
	fmt.Printf("Total value: $%s   Unrealized PnL: $%s   Stale prices: %d\n", value, pnl, s.StalePriceCount)
}

func colorizePnL(s string, negative bool) string {
	if negative {
		return color.RedString(s)
	}
	return color.GreenString(s)
}
