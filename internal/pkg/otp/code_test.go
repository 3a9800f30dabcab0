package otp

import (
	"errors"
	"strconv"
	"testing"
)

func TestCodeLengthAndRange(t *testing.T) {
	for length := 1; length <= 9; length++ {
		// Act
		code, err := Code(length)

		// Assert
		if err != nil {
			t.Fatalf("length %d: unexpected error: %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("length %d: got %q with %d digits", length, code, len(code))
		}
		if _, err := strconv.ParseInt(code, 10, 64); err != nil {
			t.Fatalf("length %d: code %q is not numeric: %v", length, code, err)
		}
		if length > 1 && code[0] == '0' {
			t.Fatalf("length %d: code %q has a leading zero", length, code)
		}
	}
}

func TestCodeRejectsBadLength(t *testing.T) {
	for _, length := range []int{-1, 0, 19} {
		if _, err := Code(length); !errors.Is(err, ErrCodeLength) {
			t.Fatalf("length %d: expected ErrCodeLength, got %v", length, err)
		}
	}
}

func TestCodeUniformity(t *testing.T) {
	// Arrange: single-digit codes land in [1,9], so nine equally likely
	// outcomes. A chi-square statistic over a large sample stays far below
	// the rejection threshold when the draw is unbiased.
	const (
		samples   = 27000
		cells     = 9
		threshold = 35.0 // chi-square, 8 degrees of freedom, p < 1e-4
	)
	counts := make(map[string]int, cells)

	// Act
	for i := 0; i < samples; i++ {
		code, err := Code(1)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		counts[code]++
	}

	// Assert
	if len(counts) != cells {
		t.Fatalf("expected all %d digits to occur, got %d", cells, len(counts))
	}
	expected := float64(samples) / float64(cells)
	chi := 0.0
	for digit, n := range counts {
		diff := float64(n) - expected
		chi += diff * diff / expected
		if n == 0 {
			t.Fatalf("digit %s never drawn", digit)
		}
	}
	if chi > threshold {
		t.Fatalf("distribution looks biased: chi-square %.2f > %.2f", chi, threshold)
	}
}
