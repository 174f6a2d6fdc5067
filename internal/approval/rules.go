package approval

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/joss/todoai/internal/stream"
)

// Rules holds auto-allow patterns loaded from ~/.todoai/approvals.yaml.
// A block matching a rule is approved without prompting even when
// approve-all is off.
type Rules struct {
	// Shell lists command prefixes that are always allowed,
	// e.g. "git status" allows "git status --short".
	Shell []string `yaml:"shell"`

	// Paths lists doublestar globs for file writes that are always
	// allowed, e.g. "docs/**/*.md".
	Paths []string `yaml:"paths"`
}

// LoadRules reads the rules file. A missing file yields empty rules.
func LoadRules(path string) (Rules, error) {
	var r Rules
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return r, err
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, err
	}
	return r, nil
}

// Match reports whether the block is covered by an auto-allow rule,
// and the pattern that covered it.
func (r Rules) Match(bi stream.BlockInfo) (string, bool) {
	switch stream.ClassifyBlock(bi) {
	case stream.BlockShell:
		cmd, _ := bi.Payload["cmd"].(string)
		if cmd == "" {
			return "", false
		}
		for _, prefix := range r.Shell {
			if matchCommand(cmd, prefix) {
				return prefix, true
			}
		}
	case stream.BlockFile:
		path := blockPath(bi)
		if path == "" {
			return "", false
		}
		for _, pattern := range r.Paths {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return pattern, true
			}
		}
	}
	return "", false
}

// matchCommand matches a command against a prefix pattern on word
// boundaries: "git status" matches "git status --short" but not
// "git statusx".
func matchCommand(cmd, prefix string) bool {
	cmd = strings.TrimSpace(cmd)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return false
	}
	if cmd == prefix {
		return true
	}
	return strings.HasPrefix(cmd, prefix+" ")
}

func blockPath(bi stream.BlockInfo) string {
	if p, ok := bi.Payload["path"].(string); ok && p != "" {
		return p
	}
	if p, ok := bi.Payload["filePath"].(string); ok && p != "" {
		return p
	}
	return ""
}
