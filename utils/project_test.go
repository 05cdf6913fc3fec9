package utils

import "testing"

func TestSanitizeProject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"nginx", "nginx"},
		{"My Stack", "my_stack"},
		{"UPPER", "upper"},
		{"dots.and.slashes/x", "dots_and_slashes_x"},
		{"  padded  ", "padded"},
		{"___", "default"},
		{"", "default"},
		{"role-1", "role-1"},
	}
	for _, tc := range cases {
		if got := SanitizeProject(tc.in); got != tc.want {
			t.Errorf("SanitizeProject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestComposeProjectForRole(t *testing.T) {
	if got := ComposeProjectForRole("Nginx Edge"); got != "nginx_edge" {
		t.Fatalf("unexpected project label %q", got)
	}
}
