// Package ctest drives the CTest harness that runs a solver case and reads
// back the timing reports it produces.
package ctest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chkao831/Autotuning/internal/fsutil"
)

const (
	addTestPrefix    = "add_test("
	propertiesPrefix = "set_tests_properties("
)

// ResolveCaseName finds the test registered for deckFile in a
// CTestTestfile.cmake listing. The name is taken from the
// set_tests_properties line following the first add_test line that mentions
// deckFile, falling back to the add_test name itself.
func ResolveCaseName(r io.Reader, deckFile string) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, addTestPrefix) || !strings.Contains(line, deckFile) {
			continue
		}
		if scanner.Scan() {
			next := strings.TrimSpace(scanner.Text())
			if name := firstArg(next, propertiesPrefix); name != "" {
				return name, nil
			}
		}
		if name := firstArg(line, addTestPrefix); name != "" {
			return name, nil
		}
		break
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan ctest metadata: %w", err)
	}
	return "", fmt.Errorf("no test registered for %s", deckFile)
}

// LoadCaseName resolves the case name from the metadata file at path.
func LoadCaseName(fsys fsutil.FileSystem, path, deckFile string) (string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read ctest metadata: %w", err)
	}
	name, err := ResolveCaseName(strings.NewReader(string(data)), deckFile)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return name, nil
}

func firstArg(line, prefix string) string {
	if !strings.HasPrefix(line, prefix) {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `")`)
}
