package approval

import "testing"

func TestIsTrusted(t *testing.T) {
	cases := []struct {
		command []string
		want    bool
	}{
		{[]string{"ls", "-la"}, true},
		{[]string{"git", "status"}, true},
		{[]string{"git", "diff", "HEAD~1"}, true},
		{[]string{"git", "push"}, false},
		{[]string{"rm", "-rf", "/"}, false},
		{[]string{"cat", "file.txt"}, true},
	}
	for _, c := range cases {
		got := IsTrusted(c.command)
		if got != c.want {
			t.Errorf("IsTrusted(%v) = %v, want %v", c.command, got, c.want)
		}
	}
}

func TestSessionCacheKey(t *testing.T) {
	if SessionCacheKey([]string{"git", "commit", "-m", "x"}) != "git commit" {
		t.Errorf("unexpected key: %q", SessionCacheKey([]string{"git", "commit", "-m", "x"}))
	}
	if SessionCacheKey([]string{"ls"}) != "ls" {
		t.Errorf("unexpected single-token key")
	}
}
