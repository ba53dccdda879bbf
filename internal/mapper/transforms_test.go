package mapper

import "testing"

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"RevenueModel":        "revenue_model",
		"revenueModel":        "revenue_model",
		"Revenue Model":       "revenue_model",
		"revenue-model":       "revenue_model",
		"SALES.REVENUE_MODEL": "sales_revenue_model",
		"already_snake":       "already_snake",
	}
	for in, want := range cases {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToCamel(t *testing.T) {
	cases := map[string]string{
		"revenue_model": "revenueModel",
		"revenue-model": "revenueModel",
		"Revenue Model": "revenueModel",
		"single":        "single",
		"":              "",
	}
	for in, want := range cases {
		if got := toCamel(in); got != want {
			t.Errorf("toCamel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate = %q, want abc", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate should not pad: %q", got)
	}
	// Multi-byte runes are never split.
	if got := truncate("aéz", 2); got != "a" {
		t.Errorf("truncate split a rune: %q", got)
	}
}

func TestSplitSpec(t *testing.T) {
	name, arg := SplitSpec("truncate:63")
	if name != "truncate" || arg != "63" {
		t.Errorf("unexpected split: %q %q", name, arg)
	}
	name, arg = SplitSpec("lower")
	if name != "lower" || arg != "" {
		t.Errorf("unexpected split: %q %q", name, arg)
	}
	name, arg = SplitSpec("prefix:a:b")
	if name != "prefix" || arg != "a:b" {
		t.Errorf("unexpected split: %q %q", name, arg)
	}
	name, arg = SplitSpec("")
	if name != "identity" || arg != "" {
		t.Errorf("unexpected split: %q %q", name, arg)
	}
}
