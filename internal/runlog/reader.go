package runlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maxRecordSize bounds a single log line read into memory.
const maxRecordSize = 4 * 1024 * 1024

// Discover resolves path to the list of log files to read. A file path
// is returned as-is; a directory is globbed with each pattern and the
// combined matches are processed in reverse lexical order, newest
// rotated log first. A directory with no matches is a fatal condition.
func Discover(path string, patterns []string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad log pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("could not find %s files in folder %s", strings.Join(patterns, " or "), path)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// ReadRecords streams every non-empty line of every file to fn, in file
// order. Files ending in .gz are decompressed transparently. The first
// error from fn or from the underlying reader aborts the whole read.
func ReadRecords(files []string, fn func(line []byte) error) error {
	for _, file := range files {
		if err := readFile(file, fn); err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
	}
	return nil
}

func readFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
