// Package ignore evaluates gitignore-style include/exclude rules against
// project-relative POSIX paths.
//
// Evaluation order is a contract: explicit includes override explicit
// excludes, which override the built-in defaults. Force-adding a path past
// the matcher is handled at the tracked-set layer, not here.
package ignore

import (
	"bufio"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Defaults are always excluded: the tool's own metadata directory, VCS
// directories, OS junk and editor autosaves, plus the usual build and
// environment trees of modeling projects.
var Defaults = []string{
	// version control
	".git/",
	".hg/",
	".svn/",

	// bundle metadata
	".modelops-bundle/",

	// python
	"__pycache__/",
	"*.pyc",
	"*.pyo",
	"*.egg-info/",
	"dist/",
	"build/",

	// virtual environments
	"venv/",
	".venv/",
	"env/",
	".env/",

	// node
	"node_modules/",

	// IDE and editors
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*~",

	// OS junk
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",

	// notebooks and test caches
	".ipynb_checkpoints/",
	".pytest_cache/",
	".mypy_cache/",
}

// Rule is one ordered user pattern
type Rule struct {
	Pattern string
	Include bool // re-includes paths matched by an exclude or a default
	_       struct{}
}

// ParseRules reads rules from ignore-file content: one pattern per line,
// "#" comments and blank lines skipped, leading "!" marks an include.
func ParseRules(content string) []Rule {
	var rules []Rule
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			rules = append(rules, Rule{Pattern: line[1:], Include: true})
			continue
		}
		rules = append(rules, Rule{Pattern: line})
	}
	return rules
}

// Matcher evaluates paths against defaults plus user rules
type Matcher struct {
	rules    []Rule
	defaults []string
}

// Option configures a Matcher
type Option func(*Matcher)

// Rules appends ordered user rules
func Rules(rules ...Rule) Option {
	return func(m *Matcher) {
		m.rules = append(m.rules, rules...)
	}
}

// NoDefaults drops the built-in exclusions (tests only; the metadata
// directory is re-added unconditionally)
func NoDefaults() Option {
	return func(m *Matcher) {
		m.defaults = []string{".modelops-bundle/"}
	}
}

// New creates a Matcher
func New(opts ...Option) *Matcher {
	m := &Matcher{
		defaults: Defaults,
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// IsIgnored reports whether a project-relative POSIX path is excluded
func (m *Matcher) IsIgnored(pth string) bool {
	// user includes win over everything
	for _, r := range m.rules {
		if r.Include && matchPattern(r.Pattern, pth) {
			return false
		}
	}
	for _, r := range m.rules {
		if !r.Include && matchPattern(r.Pattern, pth) {
			return true
		}
	}
	for _, pattern := range m.defaults {
		if matchPattern(pattern, pth) {
			return true
		}
	}
	return false
}

// ShouldTraverse reports whether a directory is worth walking at all.
// A directory excluded by a non-negated pattern is skipped wholesale
// unless some include rule could resurrect content beneath it.
func (m *Matcher) ShouldTraverse(dir string) bool {
	for _, r := range m.rules {
		if r.Include {
			// conservative: an include rule may target content below
			return true
		}
	}
	return !m.IsIgnored(dir + "/")
}

// matchPattern applies one gitignore-style pattern to a POSIX path.
//
// A trailing "/" constrains the pattern to directories: it matches the
// directory path itself and everything beneath it. A pattern without a
// slash matches the basename or any single path segment.
func matchPattern(pattern, pth string) bool {
	pth = strings.TrimSuffix(pth, "/")

	if dir, isDir := strings.CutSuffix(pattern, "/"); isDir {
		if pth == dir {
			return true
		}
		if ok, _ := doublestar.Match(dir, pth); ok {
			return true
		}
		if ok, _ := doublestar.Match(dir+"/**", pth); ok {
			return true
		}
		// directory name anywhere in the tree
		if !strings.Contains(dir, "/") {
			for _, seg := range strings.Split(pth, "/") {
				if ok, _ := doublestar.Match(dir, seg); ok {
					return true
				}
			}
			if ok, _ := doublestar.Match("**/"+dir+"/**", pth); ok {
				return true
			}
		}
		return false
	}

	if strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, pth)
		return ok
	}

	// segment-wise match for bare patterns like "*.pyc" or ".DS_Store"
	for _, seg := range strings.Split(pth, "/") {
		if ok, _ := doublestar.Match(pattern, seg); ok {
			return true
		}
	}
	return false
}
