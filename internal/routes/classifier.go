// Package routes decides whether an HTTP request is public or requires
// authentication. Classification is an ordered first-match-wins scan over
// a static rule set loaded at startup; a path no rule matches is always
// protected.
package routes

import (
	"fmt"
	"strings"
)

// Access is the classification outcome for one request.
type Access string

// Access values.
const (
	// Public means the request may proceed without credentials.
	Public Access = "PUBLIC"

	// Protected means the request requires a verified identity.
	Protected Access = "PROTECTED"
)

// MatchKind selects how a rule's pattern is compared against the path.
type MatchKind string

// Match kinds.
const (
	// MatchPrefix matches when the path starts with the pattern.
	MatchPrefix MatchKind = "prefix"

	// MatchSubstring matches when the path contains the pattern.
	MatchSubstring MatchKind = "substring"
)

// Rule classifies a set of requests. Rules with Methods set apply only to
// those methods, which is how write operations on otherwise-public
// resource paths stay protected: the GET-only public rule does not match
// a POST, and the POST falls through to the default.
type Rule struct {
	// Pattern is the path pattern to match. Required.
	Pattern string `yaml:"pattern"`

	// Match is the comparison kind. Defaults to prefix.
	Match MatchKind `yaml:"match,omitempty"`

	// Methods restricts the rule to the listed HTTP methods.
	// Empty means any method.
	Methods []string `yaml:"methods,omitempty"`

	// Public marks matched requests as public.
	Public bool `yaml:"public"`
}

// matches reports whether the rule applies to the method and path.
func (r Rule) matches(method, path string) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	switch r.Match {
	case MatchSubstring:
		return strings.Contains(path, r.Pattern)
	default:
		return strings.HasPrefix(path, r.Pattern)
	}
}

// Classifier evaluates an ordered rule set. Immutable after construction,
// safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier from an ordered rule set.
func NewClassifier(rules []Rule) (*Classifier, error) {
	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %d: pattern is required", i)
		}
		switch rule.Match {
		case "", MatchPrefix, MatchSubstring:
		default:
			return nil, fmt.Errorf("rule %d: unknown match kind %q", i, rule.Match)
		}
	}

	// Copy so later mutation of the caller's slice cannot change
	// classification behavior.
	owned := make([]Rule, len(rules))
	copy(owned, rules)

	return &Classifier{rules: owned}, nil
}

// Classify returns the access class for a method and path. The first
// matching rule wins; no match means Protected. The default branch is
// deny and must stay that way regardless of rule additions.
func (c *Classifier) Classify(method, path string) Access {
	for _, rule := range c.rules {
		if rule.matches(method, path) {
			if rule.Public {
				return Public
			}
			return Protected
		}
	}
	return Protected
}

// IsPublic reports whether the request classifies as public.
func (c *Classifier) IsPublic(method, path string) bool {
	return c.Classify(method, path) == Public
}

// Rules returns a copy of the rule set, mainly for startup logging.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// DefaultGatewayRules is the platform's edge allow-list: auth endpoints,
// health and documentation surfaces, and public catalog reads. Writes on
// the catalog paths are deliberately not listed, so they stay protected.
func DefaultGatewayRules() []Rule {
	return []Rule{
		{Pattern: "/api/auth/login", Public: true},
		{Pattern: "/api/auth/register", Public: true},
		{Pattern: "/api/auth/salt", Public: true},
		{Pattern: "/health", Public: true},
		{Pattern: "/actuator", Public: true},
		{Pattern: "/v3/api-docs", Public: true},
		{Pattern: "/swagger-ui", Public: true},
		{Pattern: "/api/products", Methods: []string{"GET"}, Public: true},
		{Pattern: "/api/images", Methods: []string{"GET"}, Public: true},
		{Pattern: "/images", Methods: []string{"GET"}, Public: true},
	}
}

// CommonServiceRules is the bypass list every downstream service applies
// locally, independent of the edge's classification.
func CommonServiceRules() []Rule {
	return []Rule{
		{Pattern: "/health", Public: true},
		{Pattern: "/actuator", Public: true},
		{Pattern: "/v3/api-docs", Public: true},
		{Pattern: "/swagger-ui", Public: true},
	}
}
