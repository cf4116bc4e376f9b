package proxy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultBackend is the origin of the application server the frontend talks to.
const DefaultBackend = "http://localhost:8000"

// Rule maps a literal request path prefix to a backend origin.
type Rule struct {
	Prefix string
	Target *url.URL
}

// String renders the rule as "prefix -> origin".
func (r Rule) String() string {
	return r.Prefix + " -> " + r.Target.String()
}

// ParseRule validates prefix and target and returns the resulting rule.
// The target must be a bare http or https origin: no path, query, fragment
// or userinfo.
func ParseRule(prefix, target string) (Rule, error) {
	if prefix == "" || !strings.HasPrefix(prefix, "/") {
		return Rule{}, fmt.Errorf("%w: prefix %q must start with '/'", ErrInvalidRule, prefix)
	}
	u, err := url.Parse(target)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: target %q: %v", ErrInvalidRule, target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Rule{}, fmt.Errorf("%w: target %q must use http or https", ErrInvalidRule, target)
	}
	if u.Host == "" {
		return Rule{}, fmt.Errorf("%w: target %q has no host", ErrInvalidRule, target)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return Rule{}, fmt.Errorf("%w: target %q must be an origin (scheme://host:port)", ErrInvalidRule, target)
	}
	u.Path = ""
	u.RawPath = ""
	return Rule{Prefix: prefix, Target: u}, nil
}

// DefaultRules returns the rules for the backend endpoints the frontend
// calls during development.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, 2)
	for _, prefix := range []string{"/transcribe", "/process_content"} {
		r, err := ParseRule(prefix, DefaultBackend)
		if err != nil {
			panic(err)
		}
		rules = append(rules, r)
	}
	return rules
}

// Table is an immutable set of non-overlapping proxy rules.
type Table struct {
	rules []Rule
}

// NewTable validates rules and builds a table. Prefixes must be unique and
// no prefix may be a prefix of another, so the result of Match never depends
// on rule order.
func NewTable(rules []Rule) (*Table, error) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Prefix < sorted[j].Prefix })

	for i, r := range sorted {
		if r.Target == nil {
			return nil, fmt.Errorf("%w: prefix %q has no target", ErrInvalidRule, r.Prefix)
		}
		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("%w: prefix %q must start with '/'", ErrInvalidRule, r.Prefix)
		}
		for _, other := range sorted[i+1:] {
			if r.Prefix == other.Prefix {
				return nil, fmt.Errorf("%w: duplicate prefix %q", ErrInvalidRule, r.Prefix)
			}
			if strings.HasPrefix(other.Prefix, r.Prefix) {
				return nil, fmt.Errorf("%w: prefix %q overlaps %q", ErrInvalidRule, other.Prefix, r.Prefix)
			}
		}
	}
	return &Table{rules: sorted}, nil
}

// Match returns the rule whose prefix path starts with. Matching is a plain,
// case-sensitive string prefix test: "/transcribe-v2" matches "/transcribe",
// "/Transcribe" does not.
func (t *Table) Match(path string) (Rule, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the table's rules sorted by prefix.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Targets returns the distinct backend origins referenced by the table.
func (t *Table) Targets() []*url.URL {
	seen := make(map[string]struct{}, len(t.rules))
	var out []*url.URL
	for _, r := range t.rules {
		key := r.Target.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r.Target)
	}
	return out
}
