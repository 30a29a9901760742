package timefmt

import "testing"

func TestRoundTrip(t *testing.T) {
	for _, x := range []string{"00:00", "09:05", "23:59", "12:00", "12:01", "11:59"} {
		twelve, err := To12(x)
		if err != nil {
			t.Fatalf("To12(%q): %v", x, err)
		}
		back, err := To24(twelve)
		if err != nil {
			t.Fatalf("To24(%q): %v", twelve, err)
		}
		if back != x {
			t.Fatalf("round trip failed: %q -> %q -> %q", x, twelve, back)
		}
	}
}

func TestTo12_KnownValues(t *testing.T) {
	cases := map[string]string{
		"00:00": "12:00 AM",
		"09:05": "09:05 AM",
		"12:30": "12:30 PM",
		"23:59": "11:59 PM",
	}
	for in, want := range cases {
		got, err := To12(in)
		if err != nil {
			t.Fatalf("To12(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("To12(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInvalidInput(t *testing.T) {
	if _, err := To12("25:00"); err == nil {
		t.Fatalf("expected error for 25:00")
	}
	if _, err := To24("13:00 PM"); err == nil {
		t.Fatalf("expected error for 13:00 PM")
	}
	if _, err := To24("garbage"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
