package wifi

import "testing"

func TestQuality(t *testing.T) {
	tests := []struct {
		rssi int
		want int
	}{
		{-100, 0},
		{-50, 100},
		{-75, 50},
		{-30, 100},
		{-150, 0},
		{-99, 2},
		{-51, 98},
	}

	for _, tt := range tests {
		if got := Quality(tt.rssi); got != tt.want {
			t.Errorf("Quality(%d) = %d, want %d", tt.rssi, got, tt.want)
		}
	}
}

func TestQualityBounded(t *testing.T) {
	for rssi := -300; rssi <= 50; rssi++ {
		q := Quality(rssi)
		if q < 0 || q > 100 {
			t.Fatalf("Quality(%d) = %d, out of [0,100]", rssi, q)
		}
	}
}
