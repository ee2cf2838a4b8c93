package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{in: "15.50", want: 1550},
		{in: "0.005", want: 1},
		{in: "0.004", want: 0},
		{in: "19.999", want: 2000},
		{in: "0", want: 0},
	}
	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.in))
		if got != tc.want {
			t.Fatalf("ToMinorUnits(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFromMinorUnitsAndFormat(t *testing.T) {
	amount := FromMinorUnits(1550)
	if !amount.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("unexpected amount %s", amount)
	}
	if got := Format(amount); got != "15.50" {
		t.Fatalf("expected 15.50, got %s", got)
	}
	if got := FormatWithCurrency(amount, "usd"); got != "15.50 USD" {
		t.Fatalf("unexpected formatted amount %q", got)
	}
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(decimal.RequireFromString("2.50"), 3)
	if Format(got) != "7.50" {
		t.Fatalf("expected 7.50, got %s", got)
	}
}
