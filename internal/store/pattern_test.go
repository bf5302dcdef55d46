package store

import "testing"

func TestLikePattern(t *testing.T) {
	cases := map[string]string{
		"test*":     "test%",
		"*Bot*":     "%bot%",
		"a_b":       `a\_b`,
		"100%":      `100\%`,
		`back\user`: `back\\user`,
	}
	for in, want := range cases {
		if got := LikePattern(in); got != want {
			t.Fatalf("LikePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		glob, name string
		want       bool
	}{
		{"test*", "TestUser", true},
		{"test*", "mytest", false},
		{"*bot", "ci-bot", true},
		{"a_b", "axb", false},
		{"a_b", "A_B", true},
		{"a.b", "axb", false},
	}
	for _, tc := range cases {
		if got := MatchGlob(tc.glob, tc.name); got != tc.want {
			t.Fatalf("MatchGlob(%q, %q) = %v, want %v", tc.glob, tc.name, got, tc.want)
		}
	}
}
