package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LoadMatchSet reads the keyword and author lists. A missing file means an
// empty list.
func LoadMatchSet(keywordsPath, authorsPath string) (MatchSet, error) {
	keywords, err := readLines(keywordsPath)
	if err != nil {
		return MatchSet{}, err
	}
	authors, err := readLines(authorsPath)
	if err != nil {
		return MatchSet{}, err
	}
	return NewMatchSet(keywords, authors), nil
}

func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filter: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filter: failed to read %s: %w", path, err)
	}
	return lines, nil
}
