// Package profile defines the per-assistant pattern configuration consulted
// by the Match Engine and Auto-Responder.
//
// A Profile is a plain data record — no polymorphism on the assistant
// itself. Resolving a CLI invocation to a named profile, and merging
// profiles across project/home/package config directories, is left to the
// CLI collaborator (see spec.md §1 Non-goals); this package only loads one
// profile file and validates it.
package profile

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Profile is the per-assistant record of patterns and reply keys.
type Profile struct {
	Name        string   `yaml:"name"`
	ArgvPrefix  []string `yaml:"argv-prefix"`
	Ready       []string `yaml:"ready-patterns"`
	Confirm     []string `yaml:"confirm-patterns"`
	Dangerous   []string `yaml:"dangerous-patterns"`
	ReplyKeys   string   `yaml:"reply-keys"`
	InstallHint string   `yaml:"install-hint,omitempty"`

	// AutoYes disables all auto-injection when false; the supervisor still
	// runs as a pure logger + multiplexer.
	AutoYes bool `yaml:"auto-yes"`

	// RespondToDangerous opts into auto-replying on
	// Awaiting-Dangerous-Confirmation too. Off by default: spec.md §4.6
	// says the Auto-Responder "does nothing" there unless explicitly
	// configured.
	RespondToDangerous bool `yaml:"respond-to-dangerous"`

	// compiled regexes, built by Compile.
	readyRe     []*regexp.Regexp
	confirmRe   []*regexp.Regexp
	dangerousRe []*regexp.Regexp
}

// Load reads a single profile YAML file from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.ReplyKeys == "" {
		p.ReplyKeys = "\n"
	}
	// AutoYes defaults to true unless the YAML explicitly set it false; since
	// Go zero-values bool to false, callers that omit the field from YAML
	// would otherwise silently disable auto-responses. Detect the field's
	// presence instead of trusting the zero value.
	if !hasKey(data, "auto-yes") {
		p.AutoYes = true
	}
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// hasKey reports whether key is present at the top level of the YAML
// document, by unmarshalling it a second time into map[string]any.
func hasKey(data []byte, key string) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw[key]
	return ok
}

// Compile pre-builds the regexes for all three pattern lists. Patterns are
// treated as regular expressions; there is no separate substring mode, so a
// substring matches literally only if its regex metacharacters are escaped,
// and one that is not a valid regex (such as "(") is rejected.
func (p *Profile) Compile() error {
	var err error
	if p.readyRe, err = compileAll(p.Ready); err != nil {
		return fmt.Errorf("ready-patterns: %w", err)
	}
	if p.confirmRe, err = compileAll(p.Confirm); err != nil {
		return fmt.Errorf("confirm-patterns: %w", err)
	}
	if p.dangerousRe, err = compileAll(p.Dangerous); err != nil {
		return fmt.Errorf("dangerous-patterns: %w", err)
	}
	return nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MatchReady reports whether tail matches any ready pattern.
func (p *Profile) MatchReady(tail []byte) bool { return matchAny(p.readyRe, tail) }

// MatchConfirm reports whether tail matches any confirm pattern.
func (p *Profile) MatchConfirm(tail []byte) bool { return matchAny(p.confirmRe, tail) }

// MatchDangerous reports whether tail matches any dangerous pattern.
func (p *Profile) MatchDangerous(tail []byte) bool { return matchAny(p.dangerousRe, tail) }

func matchAny(patterns []*regexp.Regexp, tail []byte) bool {
	for _, re := range patterns {
		if re.Match(tail) {
			return true
		}
	}
	return false
}
