package types

import "testing"

func TestSameName(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"CHEF", "chef", true},
		{" Chef ", "CHEF", true},
		{"Chef", "Chief", false},
		{"", "", true},
		{"  ", "", true},
	}
	for _, tc := range cases {
		if got := SameName(tc.a, tc.b); got != tc.want {
			t.Errorf("SameName(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCleanNamePreservesCase(t *testing.T) {
	if got := CleanName("  TopChef "); got != "TopChef" {
		t.Fatalf("CleanName = %q", got)
	}
}
