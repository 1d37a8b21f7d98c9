package common

import (
	"testing"
	"time"
)

func TestRFC3339MicrosFormat(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole second", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), "2024-01-15T10:30:00.000000Z"},
		{"nanoseconds truncated", time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC), "2024-01-15T10:30:00.123456Z"},
		{"converted to UTC", time.Date(2024, 1, 15, 12, 30, 0, 0, time.FixedZone("CET", 2*60*60)).UTC(), "2024-01-15T10:30:00.000000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Format(RFC3339Micros); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
