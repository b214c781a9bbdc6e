package approval

import "strings"

// trustedPrefixes is the closed set of read-only command prefixes that run
// without sandboxing or approval regardless of policy. Supplemented from the
// reference implementation's approval test suite beyond the illustrative
// echo/ls/cat/git-status list.
var trustedPrefixes = [][]string{
	{"echo"},
	{"ls"},
	{"cat"},
	{"pwd"},
	{"which"},
	{"head"},
	{"tail"},
	{"wc"},
	{"git", "status"},
	{"git", "log"},
	{"git", "diff"},
	{"git", "show"},
}

// IsTrusted reports whether command matches one of the built-in read-only
// allowlist prefixes exactly (no extra leading tokens, case-sensitive on the
// argv[0] and fixed sub-command tokens only).
func IsTrusted(command []string) bool {
	for _, prefix := range trustedPrefixes {
		if matchesPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func matchesPrefix(command, prefix []string) bool {
	if len(command) < len(prefix) {
		return false
	}
	for i, tok := range prefix {
		if command[i] != tok {
			return false
		}
	}
	return true
}

// SessionCacheKey derives the prefix key used by ApprovedForSession caching:
// the command's first two tokens (or fewer, if shorter), joined with a
// single space, so "git commit -m x" and "git commit -m y" share a cache
// entry but "git commit" and "git push" do not.
func SessionCacheKey(command []string) string {
	n := len(command)
	if n > 2 {
		n = 2
	}
	return strings.Join(command[:n], " ")
}
