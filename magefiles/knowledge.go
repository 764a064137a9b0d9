//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// Index syncs the SQLite search index of kb/ with its entity files.
func Index() error {
	mg.Deps(Build)
	return run(filepath.Join(binDir, binName), "--output", storeRoot, "index", "sync")
}

// Reindex rebuilds the search index of kb/ from scratch.
func Reindex() error {
	mg.Deps(Build)
	return run(filepath.Join(binDir, binName), "--output", storeRoot, "index", "rebuild")
}

// Regenerate rebuilds the derived artifacts of kb/ from its entity files.
func Regenerate() error {
	mg.Deps(Build)
	return run(filepath.Join(binDir, binName), "--output", storeRoot, "regenerate")
}
