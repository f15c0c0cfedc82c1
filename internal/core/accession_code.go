package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultPlantDelimiter separates accession codes from plant codes in
	// compound identifiers like 2024.0001.1.
	DefaultPlantDelimiter = "."

	// DefaultAccessionCodeFormat yields codes like 2024.0001.
	DefaultAccessionCodeFormat = "%{Y}%PD####"
)

// yearToken matches %{Y}, %{Y+n}, and %{Y-n} placeholders.
var yearToken = regexp.MustCompile(`%\{Y([+-]\d+)?\}`)

// NextAccessionCode expands the code format and returns the next free code in
// its sequence. The trailing run of # characters becomes a zero-padded number
// one past the highest existing code sharing the expanded prefix; with no #
// run the sequence number is appended unpadded.
//
// Placeholders: %{Y} is the current year, %{Y-1} and %{Y+1} shift it, and %PD
// is the plant delimiter.
func (s *Service) NextAccessionCode(ctx context.Context, format string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "next_accession_code")
	start := s.clock.Now()
	code, err := s.nextAccessionCode(format)
	s.metrics.Observe(ctx, "next_accession_code", err == nil, s.clock.Now().Sub(start))
	span.End(err)
	return code, err
}

func (s *Service) nextAccessionCode(format string) (string, error) {
	if strings.TrimSpace(format) == "" {
		format = DefaultAccessionCodeFormat
	}
	expanded, err := s.expandCodeFormat(format)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimRight(expanded, "#")
	digits := len(expanded) - len(prefix)

	next := 1
	for _, acc := range s.store.ListAccessions() {
		if !strings.HasPrefix(acc.Code, prefix) {
			continue
		}
		rest := acc.Code[len(prefix):]
		if !allDigits(rest) {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, digits, next), nil
}

func (s *Service) expandCodeFormat(format string) (string, error) {
	year := s.nowFn().Year()
	expanded := yearToken.ReplaceAllStringFunc(format, func(match string) string {
		sub := yearToken.FindStringSubmatch(match)
		if sub[1] == "" {
			return strconv.Itoa(year)
		}
		offset, _ := strconv.Atoi(sub[1])
		return strconv.Itoa(year + offset)
	})
	expanded = strings.ReplaceAll(expanded, "%PD", s.delimiter)
	if strings.Contains(expanded, "%{") {
		return "", fmt.Errorf("unrecognized placeholder in code format %q", format)
	}
	return expanded, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
