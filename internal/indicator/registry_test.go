package indicator

import (
	"errors"
	"testing"

	"indicore/internal/model"
)

func TestRegistry_BuiltinKinds(t *testing.T) {
	kinds := Builtin().Kinds()
	want := []string{"EMA", "MACD", "RSI", "SMA", "SMMA"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds: got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds: got %v, want %v", kinds, want)
		}
	}
}

func TestRegistry_New_AppliesParams(t *testing.T) {
	reg := Builtin()
	cfg, err := reg.New(Spec{Kind: "SMA", Params: map[string]string{"period": "3"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	inputs := series(10, 20, 30, 40)
	got, err := cfg.Over(inputs)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Over[model.Candle](NewSMA[model.Candle](3), inputs)
	if err != nil {
		t.Fatal(err)
	}
	assertResultsEqual(t, "registry-built SMA(3)", got, want)
}

func TestRegistry_New_UnknownKind(t *testing.T) {
	_, err := Builtin().New(Spec{Kind: "VWAP"})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRegistry_New_BadParam(t *testing.T) {
	cases := []Spec{
		{Kind: "SMA", Params: map[string]string{"period": "0"}},
		{Kind: "SMA", Params: map[string]string{"period": "x"}},
		{Kind: "SMA", Params: map[string]string{"window": "5"}},
		{Kind: "RSI", Params: map[string]string{"zone": "0.9"}},
		{Kind: "MACD", Params: map[string]string{"fast": "26", "slow": "12"}},
	}
	for _, spec := range cases {
		if _, err := Builtin().New(spec); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%v: expected ErrInvalidParameter, got %v", spec, err)
		}
	}
}

func TestSpec_Label(t *testing.T) {
	cases := []struct {
		spec Spec
		want string
	}{
		{Spec{Kind: "SMA", Params: map[string]string{"period": "20"}}, "SMA_20"},
		{Spec{Kind: "RSI", Params: map[string]string{"period": "14", "zone": "0.3"}}, "RSI_14_0.3"},
		{Spec{Kind: "MACD", Params: map[string]string{"fast": "12", "slow": "26", "signal": "9"}}, "MACD_12_26_9"},
		{Spec{Kind: "EMA"}, "EMA"},
	}
	for _, tc := range cases {
		if got := tc.spec.Label(); got != tc.want {
			t.Errorf("Label(%+v): got %q, want %q", tc.spec, got, tc.want)
		}
	}
}

func TestSpec_Equal(t *testing.T) {
	a := Spec{Kind: "SMA", Params: map[string]string{"period": "20"}}
	b := Spec{Kind: "SMA", Params: map[string]string{"period": "20"}}
	c := Spec{Kind: "SMA", Params: map[string]string{"period": "21"}}
	d := Spec{Kind: "EMA", Params: map[string]string{"period": "20"}}

	if !a.Equal(b) {
		t.Error("identical specs should be equal")
	}
	if a.Equal(c) || a.Equal(d) {
		t.Error("different specs should not be equal")
	}
}

func TestRegistry_RegisterCustomKind(t *testing.T) {
	reg := NewRegistry()
	reg.Register("SMA", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewSMA[model.Candle](10))
	})

	cfg, err := reg.New(Spec{Kind: "SMA"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cfg.Name() != "SMA" {
		t.Errorf("name: got %q", cfg.Name())
	}
}
