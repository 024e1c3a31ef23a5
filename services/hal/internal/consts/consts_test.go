package consts

import "testing"

func TestTokens(t *testing.T) {
	if TokConfig != "config" || TokHAL != "hal" || TokCapability != "cap" {
		t.Fatal("top-level tokens changed unexpectedly")
	}
	if CtrlReadNow != "read_now" || CtrlSetRate != "set_rate" {
		t.Fatal("control tokens changed unexpectedly")
	}
	if MinPeriodMs > DefaultPeriodMs || DefaultPeriodMs > MaxPeriodMs {
		t.Fatal("period bounds out of order")
	}
}
