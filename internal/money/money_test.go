package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Money
	}{
		{"0", 0},
		{"0.01", 1},
		{"12.34", 1234},
		{"12.345", 1235},  // half away from zero
		{"-12.345", -1235},
		{"3.5", 350},
		{"40.00", 4000},
		{"0.005", 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12.3.4", "$5"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", in)
			}
			var invalid *InvalidAmountError
			if !errors.As(err, &invalid) {
				t.Errorf("Parse(%q) error = %T, want *InvalidAmountError", in, err)
			}
		})
	}
}

func TestFraction(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		rate   string
		want   Money
	}{
		{"20.625 rounds up", 250, "0.0825", 21},
		{"exact half rounds away from zero", 100, "0.075", 8},
		{"exact product", 4000, "0.07", 280},
		{"zero rate", 4000, "0", 0},
		{"below half rounds down", 100, "0.074", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := decimal.NewFromString(tt.rate)
			if err != nil {
				t.Fatal(err)
			}
			if got := Fraction(tt.amount, rate); got != tt.want {
				t.Errorf("Fraction(%d, %s) = %d, want %d", tt.amount, tt.rate, got, tt.want)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7", "0.07"},        // >1 means percentage
		{"0.07", "0.07"},     // <=1 already a fraction
		{"8.25", "0.0825"},
		{"1", "1"},           // boundary: 1 is a fraction, not 100%
		{"0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if err != nil {
				t.Fatalf("ParseRate(%q) returned error: %v", tt.in, err)
			}
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParseRate(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestParseRate_Invalid(t *testing.T) {
	for _, in := range []string{"-0.05", "150", "pct"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseRate(in); err == nil {
				t.Errorf("ParseRate(%q) succeeded, want error", in)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		m    Money
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1234, "12.34"},
		{-5, "-0.05"},
		{-1234, "-12.34"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Money(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a, b := Money(350), Money(250)
	if got := a.Add(b); got != 600 {
		t.Errorf("Add = %d, want 600", got)
	}
	if got := a.Sub(b); got != 100 {
		t.Errorf("Sub = %d, want 100", got)
	}
	if got := Money(4590).Float64(); got != 45.90 {
		t.Errorf("Float64 = %f, want 45.90", got)
	}
}
