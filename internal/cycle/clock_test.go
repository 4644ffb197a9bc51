package cycle

import (
	"testing"
	"time"
)

func TestResetWait(t *testing.T) {
	shanghai := time.FixedZone("UTC+8", 8*3600)
	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"exact midnight", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 0},
		{"one second before", time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC), time.Second},
		{"noon", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), 12 * time.Hour},
		{"just after midnight", time.Date(2024, 5, 1, 0, 0, 0, 500_000_000, time.UTC), 24*time.Hour - 500*time.Millisecond},
		{"other zone", time.Date(2024, 5, 1, 10, 0, 0, 0, shanghai), 22 * time.Hour},
		{"month end", time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC), 5*time.Hour + 30*time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResetWait(tc.now)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if got < 0 || got >= 24*time.Hour {
				t.Fatalf("wait %s out of range", got)
			}
		})
	}
}

func TestTokenSymbol(t *testing.T) {
	cases := map[string]string{
		"AbCdEfGhIj": "$BCDF",
		"aeiouAEIOU": "$",
		"xyz":        "$XYZ",
		"Q1w2e3r4t5": "$Q1W2",
	}
	for name, want := range cases {
		if got := TokenSymbol(name); got != want {
			t.Fatalf("TokenSymbol(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRandomSupplyRange(t *testing.T) {
	low := randomSupply(func(int) int { return 0 })
	high := randomSupply(func(n int) int { return n - 1 })
	if low != 1_000_000 || high != 9_999_999 {
		t.Fatalf("unexpected bounds %d %d", low, high)
	}
}
