package sweep

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	inf := math.Inf(1)
	testCases := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{"odd", []float64{1.0, 3.0, 2.0}, 2.0},
		{"single", []float64{4.2}, 4.2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"majority failed", []float64{1.2, inf, inf}, inf},
		{"minority failed", []float64{1.2, 1.4, inf}, 1.4},
		{"even with failure", []float64{1.0, inf}, inf},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := append([]float64(nil), tc.input...)
			got := Median(tc.input)
			if got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
			for i := range input {
				if input[i] != tc.input[i] {
					t.Fatalf("Median reordered its input")
				}
			}
		})
	}

	if !math.IsNaN(Median(nil)) {
		t.Error("expected NaN for empty input")
	}
}

func TestRound4(t *testing.T) {
	testCases := []struct {
		input    float64
		expected float64
	}{
		{1.23456, 1.2346},
		{0.41234999, 0.4123},
		{-0.00005, -0.0001},
		{2, 2},
		{math.Inf(1), math.Inf(1)},
	}
	for _, tc := range testCases {
		if got := Round4(tc.input); got != tc.expected {
			t.Errorf("Round4(%v): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestMeanStddev(t *testing.T) {
	mean, sd := MeanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("expected mean 5, got %v", mean)
	}
	if math.Abs(sd-2.138089935299395) > 1e-12 {
		t.Errorf("unexpected sample stddev %v", sd)
	}
	if m, s := MeanStddev(nil); m != 0 || s != 0 {
		t.Errorf("expected zeros for empty input, got %v %v", m, s)
	}
	if m, s := MeanStddev([]float64{3}); m != 3 || s != 0 {
		t.Errorf("expected (3, 0), got %v %v", m, s)
	}
}
