//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var binaries = []string{"chimp", "chimpctl"}

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Build compiles the agent and the command-line client into ./bin.
func Build() error {
	if err := os.MkdirAll("bin", os.ModePerm); err != nil {
		return err
	}
	for _, name := range binaries {
		out := filepath.Join("bin", binaryWithExt(name))
		fmt.Printf("Building %s...\n", out)
		if err := sh.RunV("go", "build", "-o", out, "./cmd/"+name); err != nil {
			return err
		}
	}
	return nil
}

// Tests runs the unit tests with the race detector and writes a coverage report.
func Tests() error {
	return sh.RunV("go", "test", "-race", "-coverprofile=coverage.out", "./...")
}

// TestsShort skips the tests that run real load generators.
func TestsShort() error {
	return sh.RunV("go", "test", "-short", "./...")
}

// CheckLint runs golangci-lint over the module.
func CheckLint() error {
	return sh.RunV(binaryWithExt("golangci-lint"), "run", "--timeout", "10m")
}

// Run starts the agent with the default configuration.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join("bin", binaryWithExt("chimp")))
}

// Clean up after yourself
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "coverage.out"} {
		os.RemoveAll(path)
	}
}
