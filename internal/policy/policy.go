// Package policy decides when remapping is switched off for the focused window.
package policy

import (
	"fmt"
	"strings"

	"github.com/jetkvm/remapd/internal/focus"
)

// Rules lists substrings. A focused window matching any of them suppresses
// remapping. Class patterns are case-sensitive; title and process patterns
// ignore case.
type Rules struct {
	ClassContains   []string `toml:"class_contains" json:"class_contains"`
	TitleContains   []string `toml:"title_contains" json:"title_contains"`
	ProcessContains []string `toml:"process_contains" json:"process_contains"`
}

// DefaultRules matches terminals, vim, VS Code and emacs.
func DefaultRules() Rules {
	return Rules{
		ClassContains: []string{"terminal"},
		TitleContains: []string{"vim", "code", "emacs"},
	}
}

// Validate rejects empty patterns, which would match every window.
func (r Rules) Validate() error {
	for field, list := range map[string][]string{
		"class_contains":   r.ClassContains,
		"title_contains":   r.TitleContains,
		"process_contains": r.ProcessContains,
	} {
		for i, p := range list {
			if p == "" {
				return fmt.Errorf("policy.%s[%d] must not be empty", field, i)
			}
		}
	}
	return nil
}

// Policy is an immutable suppression predicate.
type Policy struct {
	rules Rules
}

func New(r Rules) *Policy {
	return &Policy{rules: Rules{
		ClassContains:   append([]string(nil), r.ClassContains...),
		TitleContains:   append([]string(nil), r.TitleContains...),
		ProcessContains: append([]string(nil), r.ProcessContains...),
	}}
}

func Default() *Policy { return New(DefaultRules()) }

// Suppressed reports whether remapping is off for snap. Without a snapshot
// remapping stays on.
func (p *Policy) Suppressed(snap *focus.Snapshot) bool {
	_, ok := p.Match(snap)
	return ok
}

// Match returns the rule that suppresses remapping for snap, e.g.
// `title contains "vim"`.
func (p *Policy) Match(snap *focus.Snapshot) (string, bool) {
	if p == nil || snap == nil {
		return "", false
	}
	if s, ok := containsAny(snap.Class, p.rules.ClassContains, false); ok {
		return fmt.Sprintf("class contains %q", s), true
	}
	if s, ok := containsAny(snap.Title, p.rules.TitleContains, true); ok {
		return fmt.Sprintf("title contains %q", s), true
	}
	if s, ok := containsAny(snap.Process, p.rules.ProcessContains, true); ok {
		return fmt.Sprintf("process contains %q", s), true
	}
	return "", false
}

func (p *Policy) Rules() Rules {
	return New(p.rules).rules
}

func containsAny(s string, subs []string, foldCase bool) (string, bool) {
	if foldCase {
		s = strings.ToLower(s)
	}
	for _, sub := range subs {
		needle := sub
		if foldCase {
			needle = strings.ToLower(sub)
		}
		if strings.Contains(s, needle) {
			return sub, true
		}
	}
	return "", false
}
