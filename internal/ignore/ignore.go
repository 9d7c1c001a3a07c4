// Package ignore compiles an archive's ignore rules into a predicate
// over absolute paths.
//
// A rule is one of three dialects, picked by a first-character test:
// a bare name matches any file whose basename equals the rule, a rule
// starting with "/" matches exactly that path relative to the working
// root, and anything else matches any file whose canonical path ends
// with the rule.
package ignore

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"
)

// ControlDir is the working tree control directory, always excluded.
const ControlDir = ".hoard"

// Matcher is a compiled rule set.
type Matcher struct {
	root     string
	names    map[string]bool
	exact    map[string]bool
	suffixes []string
}

// Compile builds a Matcher for the canonical root and rule set. The
// control directory rule is always added.
func Compile(root string, rules []string) *Matcher {
	m := &Matcher{
		root:  filepath.Clean(root),
		names: make(map[string]bool),
		exact: make(map[string]bool),
	}
	m.add(ControlDir)
	for _, r := range rules {
		m.add(r)
	}
	return m
}

func (m *Matcher) add(rule string) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return
	}
	switch {
	case !strings.Contains(rule, "/"):
		m.names[rule] = true
	case strings.HasPrefix(rule, "/"):
		trimmed := strings.TrimSuffix(rule, "/")
		m.exact[filepath.Join(m.root, trimmed)] = true
	default:
		m.suffixes = append(m.suffixes, strings.TrimSuffix(rule, "/"))
	}
}

// Match reports whether the absolute path is excluded. Matching is a
// disjunction across rules; rule order is irrelevant.
func (m *Matcher) Match(absPath string) bool {
	clean := filepath.Clean(absPath)
	if m.names[filepath.Base(clean)] {
		return true
	}
	if m.exact[clean] {
		return true
	}
	for _, suf := range m.suffixes {
		if strings.HasSuffix(clean, suf) {
			return true
		}
	}
	return false
}

// ReadRules parses an ignore file: one rule per line, blank lines and
// "#" comments stripped.
func ReadRules(r io.Reader) ([]string, error) {
	var rules []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
