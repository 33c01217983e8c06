package slug_test

import (
	"strings"
	"testing"

	"focusguard/internal/platform/slug"
)

func TestMake(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{in: "Learn React hooks!", want: "learn-react-hooks"},
		{in: "  YouTube  ", want: "youtube"},
		{in: "&lt;b&gt;", want: "lt-b-gt"},
		{in: "", want: "session"},
		{in: "???", want: "session"},
		{in: "Check_family--msgs", want: "check-family-msgs"},
	}
	for _, tc := range cases {
		if got := slug.Make(tc.in); got != tc.want {
			t.Fatalf("Make(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	long := slug.Make(strings.Repeat("ab ", 40))
	if len(long) > slug.MaxLength || strings.HasSuffix(long, "-") {
		t.Fatalf("unexpected long slug %q", long)
	}
}
