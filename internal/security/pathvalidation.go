// Package security keeps files written on behalf of a sweep inside the
// directory the operator chose for them.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports an error when filePath, after cleaning
// and symlink resolution, would land outside safeDir. Paths that do not exist
// yet are checked through their nearest existing parent.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, resolveExisting(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p.
func resolveExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rel)
		}
		if dir == filepath.Dir(dir) {
			return p
		}
	}
}

// ReportPath returns the path of the JSON report for a sweep loaded from
// source, placed directly inside dir.
func ReportPath(dir, source string) (string, error) {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	p := filepath.Join(dir, SanitizeFilename(stem)+".json")
	if err := ValidatePathWithinDirectory(p, dir); err != nil {
		return "", err
	}
	return p, nil
}

// ReportNamer hands out report paths inside one directory that stay unique
// for the life of the namer, so sweeps sharing a file stem do not overwrite
// each other's reports.
type ReportNamer struct {
	dir  string
	used map[string]bool
}

// NewReportNamer returns a namer for reports written into dir.
func NewReportNamer(dir string) *ReportNamer {
	return &ReportNamer{dir: dir, used: map[string]bool{}}
}

// Next returns the report path for source. The first sweep with a given stem
// gets ReportPath's name; later ones get _2, _3 and so on. Names are compared
// case-insensitively.
func (n *ReportNamer) Next(source string) (string, error) {
	p, err := ReportPath(n.dir, source)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(p), ".json")
	for k := 2; n.used[strings.ToLower(p)]; k++ {
		p = filepath.Join(n.dir, fmt.Sprintf("%s_%d.json", stem, k))
	}
	n.used[strings.ToLower(p)] = true
	return p, nil
}

// SanitizeFilename maps s onto ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become one underscore and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
