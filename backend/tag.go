// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"fmt"
	"strings"
)

// Tag names one backend tier.
type Tag uint8

// Backend tiers, highest capability first.
const (
	TagGPU Tag = iota + 1
	TagShared
	TagSoftware
)

// String returns the config name of t.
func (t Tag) String() string {
	switch t {
	case TagGPU:
		return "gpu"
	case TagShared:
		return "shared"
	case TagSoftware:
		return "software"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// ParseTag parses a config name ("gpu", "shared", "software").
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu":
		return TagGPU, nil
	case "shared":
		return TagShared, nil
	case "software", "cpu":
		return TagSoftware, nil
	}
	return 0, fmt.Errorf("backend: unknown backend %q", s)
}

// ParsePriority parses a list of names, rejecting duplicates.
func ParsePriority(names []string) ([]Tag, error) {
	seen := make(map[Tag]bool, len(names))
	out := make([]Tag, 0, len(names))
	for _, n := range names {
		t, err := ParseTag(n)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, fmt.Errorf("backend: %q listed twice", n)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// DefaultPriority returns [gpu, shared, software].
func DefaultPriority() []Tag {
	return []Tag{TagGPU, TagShared, TagSoftware}
}
