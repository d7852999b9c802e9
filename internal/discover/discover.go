// Package discover finds input files by variable token and maps them to output
// paths.
package discover

import (
	"fmt"
	"path/filepath"
	"strings"
)

type DuplicatePolicy string

const (
	// KeepDuplicates lists a file once per matching token.
	KeepDuplicates DuplicatePolicy = "keep"
	// FirstToken lists a file once, under the first token that matched it.
	FirstToken DuplicatePolicy = "first"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case KeepDuplicates, FirstToken:
		return DuplicatePolicy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q (want %q or %q)", s, KeepDuplicates, FirstToken)
}

// Candidate is one input file to process under one variable token.
type Candidate struct {
	Root  string
	Path  string
	Token string
}

type Discoverer struct {
	tokens []string
	policy DuplicatePolicy
}

func New(tokens []string, policy DuplicatePolicy) *Discoverer {
	if policy == "" {
		policy = KeepDuplicates
	}
	return &Discoverer{tokens: tokens, policy: policy}
}

// Discover globs *<token>*.nc in root for each token and returns the matches
// flattened in token order.
func (d *Discoverer) Discover(root string) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate
	for _, token := range d.tokens {
		matches, err := filepath.Glob(filepath.Join(root, "*"+token+"*.nc"))
		if err != nil {
			return nil, fmt.Errorf("glob %s in %s: %w", token, root, err)
		}
		for _, path := range matches {
			if d.policy == FirstToken && seen[path] {
				continue
			}
			seen[path] = true
			out = append(out, Candidate{Root: root, Path: path, Token: token})
		}
	}
	return out, nil
}

// OutputPath maps an input file to its CSV: the path relative to its root, with
// "global" in the file name replaced by label and the extension changed to .csv,
// placed under outRoot.
func OutputPath(c Candidate, outRoot, label string) (string, error) {
	rel, err := filepath.Rel(c.Root, c.Path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", c.Path, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside root %s", c.Path, c.Root)
	}
	dir, base := filepath.Split(rel)
	base = strings.ReplaceAll(base, "global", label)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".csv"
	return filepath.Join(outRoot, dir, base), nil
}
