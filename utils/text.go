package utils

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var firstNumber = regexp.MustCompile(`\d+`)

// ParseImageCount extracts the first integer from the gallery heading,
// e.g. "画像（12点）" → 12.
func ParseImageCount(text string) (int, error) {
	m := firstNumber.FindString(toHalfWidthDigits(text))
	if m == "" {
		return 0, fmt.Errorf("no image count in %q", text)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("parse image count %q: %w", m, err)
	}
	return n, nil
}

// toHalfWidthDigits maps full-width digits (０-９), common on Japanese
// pages, to ASCII.
func toHalfWidthDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
}

// ReadKeyword returns the last non-empty line of the keyword file, trimmed.
func ReadKeyword(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open keyword file: %w", err)
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read keyword file: %w", err)
	}
	if last == "" {
		return "", errors.New("keyword file " + path + " has no keyword")
	}
	return last, nil
}
