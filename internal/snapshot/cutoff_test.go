package snapshot

import (
	"testing"
	"time"
)

// go test -v --run TestCutoffTTL
func TestCutoffTTL(t *testing.T) {
	day := func(hour, min int) time.Time {
		return time.Date(2025, 1, 2, hour, min, 0, 0, time.UTC)
	}

	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"before cutoff", day(2, 0), 90 * time.Minute},
		{"after cutoff rolls to tomorrow", day(4, 0), 23*time.Hour + 30*time.Minute},
		{"exactly at cutoff rolls to tomorrow", day(3, 30), 24 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CutoffTTL(tc.now, "03:30", time.UTC)
			if err != nil {
				t.Fatalf("CutoffTTL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ttl = %v, want %v", got, tc.want)
			}
		})
	}
}

// go test -v --run TestCutoffTTLInvalid
func TestCutoffTTLInvalid(t *testing.T) {
	if _, err := CutoffTTL(time.Now(), "25:99", time.UTC); err == nil {
		t.Fatal("invalid cutoff accepted")
	}
}
