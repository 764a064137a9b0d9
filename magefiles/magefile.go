//go:build mage

// Package main contains Mage build targets for kb-builder developer tooling.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"

	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/internal/structure"
)

// storeRoot is the knowledge base Init creates, matching the CLI default.
const storeRoot = "kb"

// Init creates the knowledge base directory layout under kb/.
func Init() error {
	if err := kbcontext.InitStore(storeRoot); err != nil {
		return err
	}
	for _, dir := range kbcontext.StoreDirs {
		fmt.Println("  ", filepath.Join(storeRoot, dir))
	}
	fmt.Println("Knowledge base directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "kb-builder"
	cmdPkg  = "./cmd/kb-builder"

	// buildTags enables FTS5 in go-sqlite3.
	buildTags = "sqlite_fts5"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := run("go", "build", "-tags", buildTags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the sqlite build tags.
func Test() error {
	return run("go", "test", "-tags", buildTags, "-race", "./...")
}

// Vet runs go vet with the sqlite build tags.
func Vet() error {
	return run("go", "vet", "-tags", buildTags, "./...")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Inbox builds the CLI and processes the inbox of kb/ once.
func Inbox() error {
	mg.Deps(Build)
	return run(filepath.Join(binDir, binName), "--output", storeRoot, "inbox", "process")
}

// Stats prints project metrics: Go production/test LOC, documentation word
// count and, when kb/ exists, its entity counts.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	docWords, err := countDocWords(".")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Words (documentation):           %d\n", docWords)

	if _, err := os.Stat(storeRoot); err != nil {
		return nil
	}
	c, err := structure.New(storeRoot, nil, nil).Counts()
	if err != nil {
		return err
	}
	fmt.Printf("Knowledge base: %d questions, %d answers, %d notes, %d people, %d topics, %d areas\n",
		c.Questions, c.Answers, c.Notes, c.People, c.Topics, c.Areas)
	return nil
}

// skipDir reports whether a walk should not descend into path. Directories
// starting with "_" or "." are ignored, as the go tool does, and so is the
// knowledge base itself.
func skipDir(root, path string, info os.FileInfo) bool {
	if path == root {
		return false
	}
	name := info.Name()
	return name[0] == '_' || name[0] == '.' || path == storeRoot || path == binDir
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDir(root, path, info) {
				return filepath.SkipDir
			}
			return nil
		}
		isTest := filepath.Ext(path) == ".go" && len(path) > 8 && path[len(path)-8:] == "_test.go"
		isGo := filepath.Ext(path) == ".go"
		if !isGo {
			return nil
		}
		if testOnly && !isTest {
			return nil
		}
		if !testOnly && isTest {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range splitLines(data) {
			if len(line) > 0 {
				total++
			}
		}
		return nil
	})
	return total, err
}

// countDocWords walks root and counts words in .md and .yaml files.
func countDocWords(root string) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if skipDir(root, path, info) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".md" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		total += countWords(data)
		return nil
	})
	return total, err
}

// splitLines splits data by newline, returning each line as a trimmed string.
func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			line := trimSpace(data[start:i])
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(data) {
		line := trimSpace(data[start:])
		lines = append(lines, line)
	}
	return lines
}

// trimSpace returns a string with leading and trailing whitespace removed.
func trimSpace(b []byte) string {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return string(b[start:end])
}

// countWords counts whitespace-separated tokens in data.
func countWords(data []byte) int {
	count := 0
	inWord := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}
