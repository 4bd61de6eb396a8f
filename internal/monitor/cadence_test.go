package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextInterval(t *testing.T) {
	base := 5 * time.Second

	tests := []struct {
		name          string
		base          time.Duration
		sinceActivity time.Duration
		activeNow     bool
		want          time.Duration
	}{
		{"activity this tick polls immediately", base, 0, true, 500 * time.Millisecond},
		{"10s after activity", base, 10 * time.Second, false, 1 * time.Second},
		{"just under active window", base, 29 * time.Second, false, 1 * time.Second},
		{"at active window boundary", base, 30 * time.Second, false, 2 * time.Second},
		{"40s after activity", base, 40 * time.Second, false, 2 * time.Second},
		{"just under recent window", base, 119 * time.Second, false, 2 * time.Second},
		{"quiet mailbox relaxes to 5s", base, 150 * time.Second, false, 5 * time.Second},
		{"relaxed tier never exceeds base", 3 * time.Second, 150 * time.Second, false, 3 * time.Second},
		{"large base still capped at 5s", 30 * time.Second, 150 * time.Second, false, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextInterval(tt.base, tt.sinceActivity, tt.activeNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, backoffDelay(i+1), "failure %d", i+1)
	}
}
