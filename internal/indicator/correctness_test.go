package indicator

import (
	"math"
	"testing"

	"indicore/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	return model.Candle{
		Symbol: "TEST", TF: 60,
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close,
	}
}

func series(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle(c)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// SMA(3) seeded with 100 (window prefilled), then fed the series:
	// candle 1 (100): (100+100+100)/3 = 100.0000
	// candle 2 (102): (100+100+102)/3 = 100.6667
	// candle 3 (104): (100+102+104)/3 = 102.0000
	// candle 4 (103): (102+104+103)/3 = 103.0000
	// candle 5 (105): (104+103+105)/3 = 104.0000

	inputs := series(100, 102, 104, 103, 105)
	expected := []float64{100.0, 100.6667, 102.0, 103.0, 104.0}

	results, err := Over[model.Candle](NewSMA[model.Candle](3), inputs)
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, r := range results {
		assertClose(t, "SMA(3) candle "+string(rune('1'+i)), r.Value(0), expected[i], 0.001)
	}
}

func TestSMA_Correctness_Period5(t *testing.T) {
	// SMA(5) seeded with 10, then 11..16. Once the seed values have been
	// pushed out of the window the rolling average is exact:
	// candle 6 (15): (11+12+13+14+15)/5 = 13.0
	// candle 7 (16): (12+13+14+15+16)/5 = 14.0

	results, err := Over[model.Candle](NewSMA[model.Candle](5), series(10, 11, 12, 13, 14, 15, 16))
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	assertClose(t, "SMA(5) candle 6", results[5].Value(0), 13.0, 0.0001)
	assertClose(t, "SMA(5) candle 7", results[6].Value(0), 14.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5, seeded at 100.
	// candle 1 (100): 100*0.5 + 100*0.5   = 100.0
	// candle 2 (102): 102*0.5 + 100*0.5   = 101.0
	// candle 3 (104): 104*0.5 + 101*0.5   = 102.5
	// candle 4 (103): 103*0.5 + 102.5*0.5 = 102.75
	// candle 5 (105): 105*0.5 + 102.75*0.5 = 103.875

	inputs := series(100, 102, 104, 103, 105)
	expected := []float64{100.0, 101.0, 102.5, 102.75, 103.875}

	results, err := Over[model.Candle](NewEMA[model.Candle](3), inputs)
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	for i, r := range results {
		assertClose(t, "EMA(3)", r.Value(0), expected[i], 0.0001)
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	smaCfg := NewSMA[model.Candle](10)
	emaCfg := NewEMA[model.Candle](10)

	sma, err := smaCfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}
	ema, err := emaCfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}

	// 20 flat candles, then a sudden jump to 120
	var smaRes, emaRes model.IndicatorResult
	for i := 0; i < 20; i++ {
		sma.Next(candle(100))
		ema.Next(candle(100))
	}
	smaRes = sma.Next(candle(120))
	emaRes = ema.Next(candle(120))

	if emaRes.Value(0) <= smaRes.Value(0) {
		t.Errorf("EMA should react more than SMA to a sudden jump: EMA=%.4f, SMA=%.4f",
			emaRes.Value(0), smaRes.Value(0))
	}
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// SMMA(3) seeded at 100, then Wilder smoothing:
	// candle 1 (100): (100*2 + 100)/3      = 100.0
	// candle 2 (102): (100*2 + 102)/3      = 100.6667
	// candle 3 (104): (100.6667*2 + 104)/3 = 101.7778
	// candle 4 (103): (101.7778*2 + 103)/3 = 102.1852
	// candle 5 (105): (102.1852*2 + 105)/3 = 103.1235

	inputs := series(100, 102, 104, 103, 105)
	expected := []float64{100.0, 100.6667, 101.7778, 102.1852, 103.1235}

	results, err := Over[model.Candle](NewSMMA[model.Candle](3), inputs)
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	for i, r := range results {
		assertClose(t, "SMMA(3)", r.Value(0), expected[i], 0.001)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_AllUp_Is100(t *testing.T) {
	cfg := NewRSI[model.Candle](5)
	inst, err := cfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}
	var last model.IndicatorResult
	for i := 0; i < 10; i++ {
		last = inst.Next(candle(100 + float64(i+1)))
	}
	// No losses ever: avgLoss stays exactly 0 → RSI = 100
	assertClose(t, "RSI all up", last.Value(0), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	cfg := NewRSI[model.Candle](5)
	inst, err := cfg.Init(candle(200))
	if err != nil {
		t.Fatal(err)
	}
	var last model.IndicatorResult
	for i := 0; i < 10; i++ {
		last = inst.Next(candle(200 - float64(i+1)))
	}
	assertClose(t, "RSI all down", last.Value(0), 0.0, 0.001)
}

func TestRSI_Flat_Is50(t *testing.T) {
	// Flat prices: every delta is 0, both averages stay 0 → neutral 50
	results, err := Over[model.Candle](NewRSI[model.Candle](5), series(100, 100, 100, 100, 100))
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	for i, r := range results {
		assertClose(t, "RSI flat", r.Value(0), 50.0, 0.001)
		if r.Signal(0) != model.ActionNone {
			t.Errorf("candle %d: flat series should not signal, got %v", i, r.Signal(0))
		}
	}
}

func TestRSI_ZoneSignal_FiresOnceOnEntry(t *testing.T) {
	cfg := NewRSI[model.Candle](5)
	inst, err := cfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}

	// Steadily rising prices push RSI to 100, well inside the upper zone.
	sells := 0
	for i := 0; i < 10; i++ {
		r := inst.Next(candle(100 + float64(i+1)))
		if r.Signal(0) == model.ActionSell {
			sells++
		}
		if r.Signal(0) == model.ActionBuy {
			t.Errorf("candle %d: rising series must not signal a buy", i)
		}
	}
	if sells != 1 {
		t.Errorf("expected exactly 1 sell on entering the upper zone, got %d", sells)
	}
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_Flat_IsZero(t *testing.T) {
	results, err := Over[model.Candle](NewMACD[model.Candle](12, 26, 9), series(100, 100, 100, 100))
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	for i, r := range results {
		assertClose(t, "MACD flat macd line", r.Value(0), 0.0, 1e-9)
		assertClose(t, "MACD flat signal line", r.Value(1), 0.0, 1e-9)
		if r.Signal(0) != model.ActionNone {
			t.Errorf("candle %d: flat series should not signal", i)
		}
	}
}

func TestMACD_Uptrend_PositiveLine(t *testing.T) {
	cfg := NewMACD[model.Candle](5, 10, 3)
	inst, err := cfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}
	var last model.IndicatorResult
	for i := 0; i < 30; i++ {
		last = inst.Next(candle(100 + float64(i+1)))
	}
	// Fast EMA tracks a rising series closer than the slow one.
	if last.Value(0) <= 0 {
		t.Errorf("MACD line should be positive in an uptrend, got %.4f", last.Value(0))
	}
}

func TestMACD_Arity(t *testing.T) {
	cfg := NewMACD[model.Candle](12, 26, 9)
	raw, sig := cfg.Size()
	if raw != 2 || sig != 1 {
		t.Fatalf("MACD size: got (%d,%d), want (2,1)", raw, sig)
	}
	results, err := Over[model.Candle](cfg.Clone(), series(100, 101, 99, 102))
	if err != nil {
		t.Fatalf("over failed: %v", err)
	}
	for i, r := range results {
		gotRaw, gotSig := r.Size()
		if gotRaw != raw || gotSig != sig {
			t.Errorf("result %d: arity (%d,%d) does not match declared (%d,%d)",
				i, gotRaw, gotSig, raw, sig)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Cross-indicator: same data → correct ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	// With steadily rising prices, faster MAs sit above slower MAs.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	inputs := series(closes...)

	sma5, err := Over[model.Candle](NewSMA[model.Candle](5), inputs)
	if err != nil {
		t.Fatal(err)
	}
	sma20, err := Over[model.Candle](NewSMA[model.Candle](20), inputs)
	if err != nil {
		t.Fatal(err)
	}
	ema5, err := Over[model.Candle](NewEMA[model.Candle](5), inputs)
	if err != nil {
		t.Fatal(err)
	}

	last := len(inputs) - 1
	if sma5[last].Value(0) <= sma20[last].Value(0) {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f",
			sma5[last].Value(0), sma20[last].Value(0))
	}
	if ema5[last].Value(0) <= sma20[last].Value(0) {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f",
			ema5[last].Value(0), sma20[last].Value(0))
	}
}

// ────────────────────────────────────────────────────────────
// Non-finite inputs are absorbed, never panic
// ────────────────────────────────────────────────────────────

func TestNext_NonFinitePrice_YieldsNaN(t *testing.T) {
	cfg := NewSMA[model.Candle](3)
	inst, err := cfg.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}
	inst.Next(candle(100))

	r := inst.Next(candle(math.NaN()))
	if !math.IsNaN(r.Value(0)) {
		t.Errorf("NaN input should surface as NaN value, got %.4f", r.Value(0))
	}
}
