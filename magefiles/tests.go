//go:build mage
// +build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const reportsDir = "test_reports"

// Tests is a mage target that runs the tests and generates coverage reports.
func Tests() error {
	mg.Deps(goCheck)
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return err
	}
	packages, err := goOutput("list", "./internal/...", "./cmd/...")
	if err != nil {
		return err
	}
	return runtest("coverage.out", "tests.txt", strings.Fields(packages)...)
}

// Tests the given package, e.g. mage testPackage ./internal/pipeline
func TestPackage(pkg string) error {
	mg.Deps(goCheck)
	return goRun("test", "-v", "-race", pkg)
}

func runtest(coverageFileName, outputFileName string, packages ...string) error {
	args := []string{"test", "-race", "-coverprofile", filepath.Join(reportsDir, coverageFileName)}
	args = append(args, packages...)

	output, err := os.Create(filepath.Join(reportsDir, outputFileName))
	if err != nil {
		return err
	}
	defer output.Close()
	_, err = sh.Exec(nil, output, os.Stderr, goBinary(), args...)
	return err
}
