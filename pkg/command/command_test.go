package command

import (
	"encoding/json"
	"testing"
)

func TestParseAllKindsCovered(t *testing.T) {
	for _, k := range AllKinds {
		if _, err := Parse(k, nil); err != nil {
			t.Errorf("Parse(%s, nil) returned error: %v", k, err)
		}
	}
}

func TestParseUnknownKind(t *testing.T) {
	if _, err := Parse(Kind("made_up"), nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestTransferRoundTrip(t *testing.T) {
	kind, args, ok := TryAutoDetect("transfer 100 USDC to 0xabc")
	if !ok {
		t.Fatal("expected transfer to auto-detect")
	}
	if kind != KindTransfer {
		t.Fatalf("expected KindTransfer, got %s", kind)
	}
	text, err := Format(kind, args)
	if err != nil {
		t.Fatalf("format error: %v", err)
	}
	kind2, args2, ok2, err2 := ParseCanonical(text)
	if err2 != nil || !ok2 || kind2 != KindTransfer {
		t.Fatalf("round trip failed: %q (ok=%v err=%v)", text, ok2, err2)
	}
	a2 := args2.(*TransferArgs)
	a1 := args.(*TransferArgs)
	if a1.Amount != a2.Amount || a1.Asset != a2.Asset || a1.To != a2.To {
		t.Fatalf("round trip changed semantics: %+v vs %+v", a1, a2)
	}
}

// TestCanonicalFormatRoundTrip checks the literal round-trip law from
// spec §8: formatting an already-canonical string through its parsed
// Kind/Args reproduces the same string exactly.
func TestCanonicalFormatRoundTrip(t *testing.T) {
	cases := []string{
		"DW TRANSFER 1e+06 STX TO addr1",
		"DW SETUP",
		"DW STATUS",
		"DW STOP_LOSS BTC 50000",
		"DW PAYOUT 10 USDC TO addr2 WHEN on_balance_above 1000",
	}
	for _, want := range cases {
		kind, args, ok, err := ParseCanonical(want)
		if err != nil || !ok {
			t.Fatalf("parse canonical %q: ok=%v err=%v", want, ok, err)
		}
		got, err := Format(kind, args)
		if err != nil {
			t.Fatalf("format %q: %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip: parse(%q) -> format = %q", want, got)
		}
	}
}

func TestParseTextPrefersCanonicalThenAutoDetect(t *testing.T) {
	kind, _, ok, err := ParseText("DW SETUP")
	if err != nil || !ok || kind != KindSetup {
		t.Fatalf("expected canonical SETUP to parse, got kind=%s ok=%v err=%v", kind, ok, err)
	}

	kind2, _, ok2, err2 := ParseText("send 10 USDC to 0xdead")
	if err2 != nil || !ok2 || kind2 != KindTransfer {
		t.Fatalf("expected auto-detect fallback to parse a transfer, got kind=%s ok=%v err=%v", kind2, ok2, err2)
	}
}

func TestParseTextSurfacesCanonicalParseError(t *testing.T) {
	_, _, ok, err := ParseText("DW TRANSFER not-enough-args")
	if ok || err == nil {
		t.Fatal("expected a malformed canonical command to surface a parse error, not silently fail")
	}
}

func TestParseTextNotACommand(t *testing.T) {
	_, _, ok, err := ParseText("just some notes in a cell")
	if ok || err != nil {
		t.Fatalf("expected non-command text to report ok=false, err=nil, got ok=%v err=%v", ok, err)
	}
}

func TestTryAutoDetectNoop(t *testing.T) {
	cases := []string{"", "   ", "# a comment", "this is not a command"}
	for _, c := range cases {
		kind, _, ok := TryAutoDetect(c)
		if ok {
			t.Errorf("expected %q to not auto-detect as a command", c)
		}
		if kind != KindNoop {
			t.Errorf("expected KindNoop for %q, got %s", c, kind)
		}
	}
}

func TestIsAutoApprovedDefaults(t *testing.T) {
	if !IsAutoApproved(KindBalanceCheck, nil) {
		t.Error("balance_check should be auto-approved by default")
	}
	if IsAutoApproved(KindTransfer, nil) {
		t.Error("transfer should require approval by default")
	}
}

func TestIsAutoApprovedDocOverride(t *testing.T) {
	overrides := []string{"transfer"}
	if !IsAutoApproved(KindTransfer, overrides) {
		t.Error("transfer should be auto-approved with explicit override")
	}
	if IsAutoApproved(KindBalanceCheck, overrides) {
		t.Error("balance_check should NOT be auto-approved once an explicit override list is given and omits it")
	}
}

func TestScheduleArgsNestedJSON(t *testing.T) {
	inner := TransferArgs{Amount: 50, Asset: "USDC", To: "0xdef"}
	innerRaw, err := json.Marshal(inner)
	if err != nil {
		t.Fatal(err)
	}
	sched := ScheduleArgs{InnerKind: KindTransfer, InnerArgs: innerRaw, CronExpr: "0 9 * * 1"}
	raw, err := json.Marshal(sched)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(KindSchedule, raw)
	if err != nil {
		t.Fatal(err)
	}
	sa := parsed.(*ScheduleArgs)
	if sa.InnerKind != KindTransfer || sa.CronExpr != "0 9 * * 1" {
		t.Fatalf("unexpected schedule args: %+v", sa)
	}
	innerParsed, err := Parse(sa.InnerKind, sa.InnerArgs)
	if err != nil {
		t.Fatal(err)
	}
	if innerParsed.(*TransferArgs).Asset != "USDC" {
		t.Fatalf("unexpected inner args: %+v", innerParsed)
	}
}
