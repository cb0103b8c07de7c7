package integrity

import "testing"

func TestExceededBoundary(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		maxAllowed int
		want       bool
	}{
		{"below max", 2, 3, false},
		{"exactly max is still allowed", 3, 3, false},
		{"one over max flags", 4, 3, true},
		{"far over max flags", 10, 3, true},
		{"zero max tolerates nothing", 1, 0, true},
		{"zero count never flags", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Exceeded(tt.count, tt.maxAllowed); got != tt.want {
				t.Errorf("Exceeded(%d, %d) = %v, want %v", tt.count, tt.maxAllowed, got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		count      int
		maxAllowed int
		want       int
	}{
		{0, 3, 3},
		{3, 3, 0},
		{5, 3, 0},
		{1, 3, 2},
	}

	for _, tt := range tests {
		if got := Remaining(tt.count, tt.maxAllowed); got != tt.want {
			t.Errorf("Remaining(%d, %d) = %d, want %d", tt.count, tt.maxAllowed, got, tt.want)
		}
	}
}
