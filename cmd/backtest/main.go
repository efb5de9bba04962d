// cmd/backtest replays historical candle data from SQLite through the
// indicator engine to validate indicator output without live market data.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/candles.db --tf=60,300 --from=0
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"indicore/internal/indengine"
	"indicore/internal/indicator"
	"indicore/internal/model"
	sqlitestore "indicore/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	tfStr := flag.String("tf", "60,300", "Comma-separated TFs to replay")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: KIND:ARG,... (default: SMA:20,EMA:9,RSI:14,MACD:12:26:9)")
	check := flag.Bool("check", false, "Cross-check dynamic output against the static batch path")
	flag.Parse()

	tfs := parseTFs(*tfStr)
	if len(tfs) == 0 {
		log.Fatal("[backtest] no valid TFs specified")
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	specs := indengine.ParseIndicatorSpecs(*indicatorCfg)
	configs := indengine.BuildTFSpecs(tfs, specs)

	registry := indicator.Builtin()
	engine, err := indicator.NewEngine(registry, configs)
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}

	// Load every candle for the selected TFs and replay in timestamp order
	var candles []model.Candle
	for _, tf := range tfs {
		cs, err := reader.ReadAllCandles(tf, *fromTS)
		if err != nil {
			log.Fatalf("[backtest] read candles tf=%d: %v", tf, err)
		}
		log.Printf("[backtest] loaded %d candles for tf=%ds", len(cs), tf)
		candles = append(candles, cs...)
	}
	if len(candles) == 0 {
		log.Fatal("[backtest] no candles found")
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].TS.Before(candles[j].TS)
	})

	processed := 0
	updatesTotal := 0
	signalsTotal := 0
	for _, c := range candles {
		updates, err := engine.Process(c)
		if err != nil {
			log.Printf("[backtest] process error at %s: %v", c.TS.Format("15:04:05"), err)
		}
		processed++
		for _, u := range updates {
			updatesTotal++
			for _, sig := range u.Signals {
				if sig != model.ActionNone {
					signalsTotal++
				}
			}
			if processed <= 10 || processed%1000 == 0 {
				fmt.Printf("  [%s] %s TF=%ds %s = %v\n",
					u.TS.Format("15:04:05"), u.Name, u.TF, u.Symbol, u.Values)
			}
		}
	}

	fmt.Println()
	fmt.Println("backtest complete")
	fmt.Printf("  candles processed:  %d\n", processed)
	fmt.Printf("  indicator updates:  %d\n", updatesTotal)
	fmt.Printf("  non-flat signals:   %d\n", signalsTotal)
	fmt.Printf("  tfs:                %v\n", tfs)

	if *check {
		runParityCheck(reader, tfs[0], *fromTS)
	}
}

// runParityCheck compares the static batch path (generic Over) against the
// erased dynamic path on identical input. The two must produce identical
// values step for step.
func runParityCheck(reader *sqlitestore.Reader, tf int, fromTS int64) {
	symbols, err := reader.Symbols(tf)
	if err != nil || len(symbols) == 0 {
		log.Printf("[backtest] parity check skipped: no symbols for tf=%d", tf)
		return
	}

	candles, err := reader.ReadCandles(symbols[0], tf, fromTS)
	if err != nil || len(candles) == 0 {
		log.Printf("[backtest] parity check skipped: no candles for %s", symbols[0])
		return
	}

	static := indicator.NewSMA[model.Candle](20)
	staticResults, err := indicator.Over(static, candles)
	if err != nil {
		log.Fatalf("[backtest] static path failed: %v", err)
	}

	dyn := indicator.Erase[model.Candle](indicator.NewSMA[model.Candle](20))
	dynResults, err := dyn.Over(candles)
	if err != nil {
		log.Fatalf("[backtest] dynamic path failed: %v", err)
	}

	if len(staticResults) != len(dynResults) {
		log.Fatalf("[backtest] parity check FAILED: %d static vs %d dynamic results",
			len(staticResults), len(dynResults))
	}
	for i := range staticResults {
		sv, dv := staticResults[i].Values(), dynResults[i].Values()
		for j := range sv {
			if sv[j] != dv[j] {
				log.Fatalf("[backtest] parity check FAILED at step %d: static %v vs dynamic %v",
					i, sv, dv)
			}
		}
	}
	fmt.Printf("  parity check:       ok (%d steps, %s tf=%ds)\n", len(staticResults), symbols[0], tf)
}

func parseTFs(s string) []int {
	var tfs []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs
}
