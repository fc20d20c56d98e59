package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Mode is the per-route enforcement policy.
type Mode string

const (
	// ModeNone forwards unconditionally. Used for login/registration and
	// other paths the auth service itself owns.
	ModeNone Mode = "none"

	// ModeOptional forwards with identity headers when a valid token is
	// present, and without them otherwise. Never blocks.
	ModeOptional Mode = "optional"

	// ModeRequired rejects requests without a valid token.
	ModeRequired Mode = "required"
)

// Rule maps a path prefix to a downstream target.
// Rules are static configuration; read-only at request time.
type Rule struct {
	// Prefix is matched against the request path on segment boundaries:
	// "/auth" matches "/auth" and "/auth/login/", not "/authx".
	Prefix string

	// Target is the downstream base URL.
	Target string

	Mode Mode

	// Rewrite replaces the matched prefix with the downstream's own mount
	// point. Empty strips the prefix entirely.
	Rewrite string
}

// Table resolves inbound paths to enforcement rules by longest matching
// prefix. Built once at startup.
type Table struct {
	rules []compiledRule
}

type compiledRule struct {
	Rule
	target *url.URL
}

func NewTable(rules []Rule) (*Table, error) {
	t := &Table{}
	for _, r := range rules {
		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("gateway: rule prefix %q must start with /", r.Prefix)
		}
		switch r.Mode {
		case ModeNone, ModeOptional, ModeRequired:
		default:
			return nil, fmt.Errorf("gateway: rule %q has unknown mode %q", r.Prefix, r.Mode)
		}
		u, err := url.Parse(r.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("gateway: rule %q has invalid target %q", r.Prefix, r.Target)
		}
		t.rules = append(t.rules, compiledRule{Rule: r, target: u})
	}

	// Longest prefix wins; sorting once keeps Match a linear scan.
	sort.SliceStable(t.rules, func(i, j int) bool {
		return len(t.rules[i].Prefix) > len(t.rules[j].Prefix)
	})
	return t, nil
}

// Match returns the rule for path, or nil when no rule applies.
func (t *Table) Match(path string) *compiledRule {
	for i := range t.rules {
		r := &t.rules[i]
		if path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r
		}
	}
	return nil
}

// RewritePath maps the inbound path onto the downstream mount point.
func (r *compiledRule) RewritePath(path string) string {
	rest := strings.TrimPrefix(path, r.Prefix)
	out := r.Rewrite + rest
	if out == "" {
		out = "/"
	}
	return out
}
