package preflight

// scrimshaw:ledger-sql-allowed (the lint's own patterns spell out the SQL they hunt)

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// allowMarker exempts a source file from the ledger SQL lint. It belongs
// only in the two authorized write-path packages and in tests that attempt
// raw mutations on purpose to exercise the trigger guard.
const allowMarker = "scrimshaw:ledger-sql-allowed"

// sqlPatterns match raw SQL that bypasses the ledger write paths or
// dismantles their enforcement.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+(ops__events|state__declarations)\b`),
	regexp.MustCompile(`(?i)\bUPDATE\s+(ops__events|state__declarations)\b`),
	regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+(ops__events|state__declarations)\b`),
	regexp.MustCompile(`(?i)\bDROP\s+TRIGGER\b`),
}

// Violation is one line of unauthorized ledger SQL.
type Violation struct {
	File string
	Line int
	Text string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d: %s", v.File, v.Line, strings.TrimSpace(v.Text))
}

// LintSourceTree walks root's .go files looking for raw ledger SQL in files
// that do not carry the allow marker. It returns every violation found;
// callers treat a non-empty result as fatal.
//
// Directories named testdata or vendor, hidden directories, and directories
// with a leading underscore are skipped, matching what the Go toolchain
// itself would compile.
func LintSourceTree(root string) ([]Violation, error) {
	var violations []Violation

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "testdata" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		fileViolations, err := lintFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, fileViolations...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lint source tree: %w", err)
	}
	return violations, nil
}

func lintFile(path string) ([]Violation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var violations []Violation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.Contains(line, allowMarker) {
			// The whole file is exempt.
			return nil, nil
		}
		for _, pattern := range sqlPatterns {
			if pattern.MatchString(line) {
				violations = append(violations, Violation{File: path, Line: lineNo, Text: line})
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return violations, nil
}
