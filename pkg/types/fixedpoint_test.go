package types

import "testing"

func TestParseScaledRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100"},
		{"100.00", "100"},
		{"0.55", "0.55"},
		{"1.5", "1.5"},
		{"0", "0"},
		{"0.00000001", "0.00000001"},
		{"123456789.12345678", "123456789.12345678"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.in, func(t *testing.T) {
			t.Parallel()
			v, err := ParseScaled(c.in)
			if err != nil {
				t.Fatalf("ParseScaled(%q) error: %v", c.in, err)
			}
			if got := v.ToDecimal(); got != c.want {
				t.Errorf("ToDecimal() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestParseScaledTruncatesExtraDigits(t *testing.T) {
	t.Parallel()
	v, err := ParseScaled("1.123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.ToDecimal(); got != "1.12345678" {
		t.Errorf("ToDecimal() = %q, want truncated to 8 digits", got)
	}
}

func TestParseScaledRejectsInvalid(t *testing.T) {
	t.Parallel()
	cases := []string{"", "-1", "-1.5", "1e10", "1.2.3", "abc", "1.2a"}
	for _, in := range cases {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseScaled(in); err == nil {
				t.Errorf("ParseScaled(%q) expected error, got nil", in)
			}
		})
	}
}

func TestParseScaledOverflow(t *testing.T) {
	t.Parallel()
	if _, err := ParseScaled("999999999999999999999"); err == nil {
		t.Error("expected overflow error for huge value")
	}
}

func TestScaledSub(t *testing.T) {
	t.Parallel()
	a, _ := ParseScaled("5")
	b, _ := ParseScaled("8")
	if got := a.Sub(b); got != 0 {
		t.Errorf("Sub underflow should clamp to 0, got %v", got)
	}
	if got := b.Sub(a); got.ToDecimal() != "3" {
		t.Errorf("Sub() = %v, want 3", got.ToDecimal())
	}
}
