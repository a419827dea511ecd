package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	m := New()

	for _, ignored := range []string{
		".git/config",
		".modelops-bundle/state.json",
		"src/__pycache__/model.cpython-311.pyc",
		"model.pyc",
		"deep/nested/.DS_Store",
		"Thumbs.db",
		"notes.swp",
		"venv/lib/python3.11/site-packages/x.py",
		".ipynb_checkpoints/run-checkpoint.ipynb",
	} {
		assert.True(t, m.IsIgnored(ignored), ignored)
	}

	for _, kept := range []string{
		"src/model.py",
		"data/x.csv",
		"weights.bin",
		"environment.yaml",
		"src/git/helper.py",
	} {
		assert.False(t, m.IsIgnored(kept), kept)
	}
}

func TestUserRuleOrdering(t *testing.T) {
	m := New(Rules(
		Rule{Pattern: "data/keep.csv", Include: true},
		Rule{Pattern: "data/*.csv"},
	))

	// explicit include wins over explicit exclude
	assert.False(t, m.IsIgnored("data/keep.csv"))
	assert.True(t, m.IsIgnored("data/other.csv"))
	assert.False(t, m.IsIgnored("data/other.parquet"))
}

func TestIncludeOverridesDefault(t *testing.T) {
	m := New(Rules(Rule{Pattern: "special.pyc", Include: true}))
	assert.False(t, m.IsIgnored("special.pyc"))
	assert.True(t, m.IsIgnored("other.pyc"))
}

func TestDoublestarPatterns(t *testing.T) {
	m := New(Rules(
		Rule{Pattern: "outputs/**/*.tmp"},
		Rule{Pattern: "logs/"},
	))

	assert.True(t, m.IsIgnored("outputs/a/b/c.tmp"))
	assert.False(t, m.IsIgnored("outputs/a/b/c.csv"))
	assert.True(t, m.IsIgnored("logs/run.log"))
	assert.True(t, m.IsIgnored("logs"))
}

func TestParseRules(t *testing.T) {
	rules := ParseRules("# comment\n\n*.tmp\n!keep.tmp\n  results/  \n")
	assert.Equal(t, []Rule{
		{Pattern: "*.tmp"},
		{Pattern: "keep.tmp", Include: true},
		{Pattern: "results/"},
	}, rules)
}

func TestShouldTraverse(t *testing.T) {
	m := New()
	assert.False(t, m.ShouldTraverse(".git"))
	assert.False(t, m.ShouldTraverse(".modelops-bundle"))
	assert.False(t, m.ShouldTraverse("node_modules"))
	assert.True(t, m.ShouldTraverse("src"))
}
