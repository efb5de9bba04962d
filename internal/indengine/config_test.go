package indengine

import "testing"

func TestParseIndicatorSpecs(t *testing.T) {
	specs := ParseIndicatorSpecs("SMA:20, ema:9, RSI:14:0.25, MACD:12:26:9")
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d: %v", len(specs), specs)
	}
	if specs[0].Kind != "SMA" || specs[0].Params["period"] != "20" {
		t.Errorf("sma: got %+v", specs[0])
	}
	if specs[1].Kind != "EMA" || specs[1].Params["period"] != "9" {
		t.Errorf("ema (case-folded): got %+v", specs[1])
	}
	if specs[2].Params["zone"] != "0.25" {
		t.Errorf("rsi zone: got %+v", specs[2])
	}
	if specs[3].Params["fast"] != "12" || specs[3].Params["slow"] != "26" || specs[3].Params["signal"] != "9" {
		t.Errorf("macd: got %+v", specs[3])
	}
}

func TestParseIndicatorSpecs_SkipsInvalid(t *testing.T) {
	specs := ParseIndicatorSpecs("SMA:20,MACD:12,WAT:1,EMA")
	if len(specs) != 1 {
		t.Fatalf("expected only SMA:20 to survive, got %v", specs)
	}
	if specs[0].Kind != "SMA" {
		t.Errorf("got %+v", specs[0])
	}
}

func TestParseIndicatorSpecs_DefaultsWhenEmpty(t *testing.T) {
	specs := ParseIndicatorSpecs("")
	if len(specs) == 0 {
		t.Fatal("expected default specs")
	}
	// Garbage-only input falls back to defaults too
	if got := ParseIndicatorSpecs("nope"); len(got) != len(specs) {
		t.Errorf("expected defaults for garbage input, got %v", got)
	}
}

func TestBuildTFSpecs(t *testing.T) {
	specs := ParseIndicatorSpecs("SMA:20")
	configs := BuildTFSpecs([]int{60, 300}, specs)
	if len(configs) != 2 {
		t.Fatalf("expected 2 TF configs, got %d", len(configs))
	}
	if configs[0].TF != 60 || configs[1].TF != 300 {
		t.Errorf("TFs: got %+v", configs)
	}
	if len(configs[1].Specs) != 1 || configs[1].Specs[0].Kind != "SMA" {
		t.Errorf("specs not applied to all TFs: %+v", configs[1])
	}
}
