package indicator

import (
	"errors"
	"testing"

	"indicore/internal/model"
)

func TestErasure_OverParity(t *testing.T) {
	inputs := series(100, 102, 104, 103, 105, 101, 99, 104, 108)

	t.Run("SMA", func(t *testing.T) {
		static, err := Over[model.Candle](NewSMA[model.Candle](3), inputs)
		if err != nil {
			t.Fatal(err)
		}
		dyn, err := Erase[model.Candle](NewSMA[model.Candle](3)).Over(inputs)
		if err != nil {
			t.Fatal(err)
		}
		assertResultsEqual(t, "SMA erased vs static", dyn, static)
	})

	t.Run("RSI", func(t *testing.T) {
		static, err := Over[model.Candle](NewRSI[model.Candle](5), inputs)
		if err != nil {
			t.Fatal(err)
		}
		dyn, err := Erase[model.Candle](NewRSI[model.Candle](5)).Over(inputs)
		if err != nil {
			t.Fatal(err)
		}
		assertResultsEqual(t, "RSI erased vs static", dyn, static)
	})

	t.Run("MACD", func(t *testing.T) {
		static, err := Over[model.Candle](NewMACD[model.Candle](3, 6, 2), inputs)
		if err != nil {
			t.Fatal(err)
		}
		dyn, err := Erase[model.Candle](NewMACD[model.Candle](3, 6, 2)).Over(inputs)
		if err != nil {
			t.Fatal(err)
		}
		assertResultsEqual(t, "MACD erased vs static", dyn, static)
	})
}

func TestErasure_InitAndOverLeaveConfigUnchanged(t *testing.T) {
	cfg := NewRSI[model.Candle](7)
	cfg.Zone = 0.25
	before := *cfg

	dyn := Erase[model.Candle](cfg)
	if _, err := dyn.Init(candle(100)); err != nil {
		t.Fatalf("dynamic init failed: %v", err)
	}
	if _, err := dyn.Over(series(100, 101, 102)); err != nil {
		t.Fatalf("dynamic over failed: %v", err)
	}

	if *cfg != before {
		t.Errorf("dynamic calls mutated the wrapped config: before=%+v after=%+v", before, *cfg)
	}
}

func TestErasure_ConfigReusableAfterDynamicInit(t *testing.T) {
	// The erased facade clones before consuming, so one wrapped config
	// can seed any number of independent instances.
	dyn := Erase[model.Candle](NewSMA[model.Candle](3))

	a, err := dyn.Init(candle(100))
	if err != nil {
		t.Fatal(err)
	}
	b, err := dyn.Init(candle(200))
	if err != nil {
		t.Fatal(err)
	}

	ra := a.Next(candle(100))
	rb := b.Next(candle(200))
	assertClose(t, "instance a", ra.Value(0), 100.0, 1e-9)
	assertClose(t, "instance b", rb.Value(0), 200.0, 1e-9)

	// a and b share no state
	a.Next(candle(500))
	rb2 := b.Next(candle(200))
	assertClose(t, "instance b after feeding a", rb2.Value(0), 200.0, 1e-9)
}

func TestErasure_PassThroughs(t *testing.T) {
	dyn := Erase[model.Candle](NewMACD[model.Candle](12, 26, 9))

	if dyn.Name() != "MACD" {
		t.Errorf("name: got %q", dyn.Name())
	}
	if raw, sig := dyn.Size(); raw != 2 || sig != 1 {
		t.Errorf("size: got (%d,%d), want (2,1)", raw, sig)
	}
	if !dyn.Validate() {
		t.Error("default MACD should validate")
	}
	if err := dyn.Set("fast", "0"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad set through facade: expected ErrInvalidParameter, got %v", err)
	}
	if err := dyn.Set("fast", "8"); err != nil {
		t.Errorf("set through facade failed: %v", err)
	}
}

func TestErasure_SetAffectsSubsequentInit(t *testing.T) {
	dyn := Erase[model.Candle](NewEMA[model.Candle](9))
	if err := dyn.Set("period", "3"); err != nil {
		t.Fatal(err)
	}

	inputs := series(100, 102, 104)
	got, err := dyn.Over(inputs)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Over[model.Candle](NewEMA[model.Candle](3), inputs)
	if err != nil {
		t.Fatal(err)
	}
	assertResultsEqual(t, "erased set-then-over", got, want)
}

func TestErasure_DynOverEmptyInput(t *testing.T) {
	dyn := Erase[model.Candle](NewSMA[model.Candle](3))
	results, err := dyn.Over(nil)
	if err != nil {
		t.Fatalf("over on empty input failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestErasure_InstanceNextMatchesOver(t *testing.T) {
	inputs := series(100, 98, 103, 107, 102)
	dyn := Erase[model.Candle](NewSMMA[model.Candle](4))

	a, err := dyn.Init(inputs[0])
	if err != nil {
		t.Fatal(err)
	}
	stepwise := make([]model.IndicatorResult, 0, len(inputs))
	for _, c := range inputs {
		stepwise = append(stepwise, a.Next(c))
	}

	b, err := dyn.Init(inputs[0])
	if err != nil {
		t.Fatal(err)
	}
	batch := b.Over(inputs)

	assertResultsEqual(t, "boxed instance next vs over", stepwise, batch)
}

func TestErasure_MixedCollection(t *testing.T) {
	// The point of the dynamic layer: one slice holding different
	// indicator kinds, driven without static knowledge of any of them.
	configs := []ConfigDyn[model.Candle]{
		Erase[model.Candle](NewSMA[model.Candle](3)),
		Erase[model.Candle](NewEMA[model.Candle](5)),
		Erase[model.Candle](NewSMMA[model.Candle](4)),
		Erase[model.Candle](NewRSI[model.Candle](5)),
		Erase[model.Candle](NewMACD[model.Candle](3, 6, 2)),
	}

	instances := make([]Instance[model.Candle], len(configs))
	for i, cfg := range configs {
		inst, err := cfg.Init(candle(100))
		if err != nil {
			t.Fatalf("%s: init failed: %v", cfg.Name(), err)
		}
		instances[i] = inst
	}

	for step := 0; step < 10; step++ {
		c := candle(100 + float64(step))
		for i, inst := range instances {
			r := inst.Next(c)
			wantRaw, wantSig := configs[i].Size()
			raw, sig := r.Size()
			if raw != wantRaw || sig != wantSig {
				t.Errorf("%s step %d: arity (%d,%d), declared (%d,%d)",
					inst.Name(), step, raw, sig, wantRaw, wantSig)
			}
		}
	}
}
