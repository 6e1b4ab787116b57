package scan

import "testing"

// property 7: matches("*.txt", "a.txt") = true, matches("a/?/b", "a/x/b")
// = true, matches("*.txt", "a.txtx") = false.
func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.txt", "a.txt", true},
		{"a/?/b", "a/x/b", true},
		{"*.txt", "a.txtx", false},
		{"*", "anything", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"node_modules", "node_modules", true},
		{"*/build/*", "pkg/build/out.o", true},
		{"?", "ab", false},
	}
	for _, c := range cases {
		if got := MatchGlob(c.pattern, c.name); got != c.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
