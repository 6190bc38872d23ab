package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for values that end up in command argument lists.
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	repoPattern   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateBranchName ensures a branch name is safe for git operations.
// Prevents option injection through branch names.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateRepoName ensures a repository name is safe for use as a
// registry key and broker partition key.
func ValidateRepoName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("repository name cannot start with '-' or '.'")
	}
	if !repoPattern.MatchString(name) {
		return fmt.Errorf("repository name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)")
	}
	return nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal
// attempts. Used for registry-provided working directories.
func SanitizePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", path)
	}

	return filepath.Clean(path), nil
}
