package swap

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status Status
		expiry time.Time
		want   bool
	}{
		{"pending before window", StatusPending, now.Add(time.Hour), false},
		{"pending exactly at expiry", StatusPending, now, false},
		{"pending past window", StatusPending, now.Add(-time.Second), true},
		{"accepted past window", StatusAccepted, now.Add(-time.Hour), false},
		{"cancelled past window", StatusCancelled, now.Add(-time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Request{Status: tc.status, ExpiresAt: tc.expiry}
			if got := r.Expired(now); got != tc.want {
				t.Fatalf("Expired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusAccepted:  true,
		StatusRejected:  true,
		StatusCancelled: true,
	} {
		r := Request{Status: status}
		if got := r.Terminal(); got != want {
			t.Fatalf("Terminal() for %s = %v, want %v", status, got, want)
		}
	}
}

func TestNormalizePairSymmetry(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	lo1, hi1 := NormalizePair(a, b)
	lo2, hi2 := NormalizePair(b, a)

	if lo1 != lo2 || hi1 != hi2 {
		t.Fatalf("pair order leaked through: (%s,%s) vs (%s,%s)", lo1, hi1, lo2, hi2)
	}
	if lo1.String() > hi1.String() {
		t.Fatalf("pair not ordered: %s > %s", lo1, hi1)
	}
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "accepted", "rejected", "cancelled"} {
		if got, ok := ParseStatus(valid); !ok || string(got) != valid {
			t.Fatalf("ParseStatus(%q) = %q, %v", valid, got, ok)
		}
	}
	for _, invalid := range []string{"", "expired", "PENDING", "canceled"} {
		if _, ok := ParseStatus(invalid); ok {
			t.Fatalf("ParseStatus(%q) accepted an invalid status", invalid)
		}
	}
}
