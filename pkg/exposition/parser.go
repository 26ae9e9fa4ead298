// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package exposition parses the line-oriented metrics exposition format
// served by Kepler-style power exporters.
//
// The grammar covered here is intentionally narrow: one sample per line in
// the form
//
//	metric_name{label1="val1",label2="val2"} <float>
//
// Lines that do not match this shape (comments, histograms, metrics without
// labels) are reported as "not matched" rather than as errors, since most
// lines in a scrape are not the metric a caller is looking for.
package exposition

import (
	"strconv"
	"strings"
)

// Sample is one parsed exposition line.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// ParseLine parses a single exposition-format line. The second return value
// reports whether the line matched the expected shape; a false return is not
// an error condition. Malformed label pairs inside an otherwise well-formed
// line are skipped rather than failing the whole line.
func ParseLine(line string) (Sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Sample{}, false
	}

	open := strings.IndexByte(line, '{')
	if open <= 0 {
		return Sample{}, false
	}
	close := strings.LastIndexByte(line, '}')
	if close < open {
		return Sample{}, false
	}

	// Everything after the closing brace must be a single numeric value.
	valueStr := strings.TrimSpace(line[close+1:])
	if valueStr == "" {
		return Sample{}, false
	}
	// A trailing timestamp (exposition allows one) is ignored.
	if i := strings.IndexByte(valueStr, ' '); i >= 0 {
		valueStr = valueStr[:i]
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Sample{}, false
	}

	return Sample{
		Name:   line[:open],
		Labels: parseLabels(line[open+1 : close]),
		Value:  value,
	}, true
}

// parseLabels parses `key="value",key2="value2"` into a map. Pairs without
// an '=' or with no key are dropped.
func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range splitLabelPairs(s) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"`)
		labels[key] = val
	}
	return labels
}

// splitLabelPairs splits on commas that are outside quoted values, so label
// values containing commas survive intact.
func splitLabelPairs(s string) []string {
	var pairs []string
	var b strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuotes = !inQuotes
			b.WriteByte(c)
		case c == ',' && !inQuotes:
			if b.Len() > 0 {
				pairs = append(pairs, b.String())
				b.Reset()
			}
		default:
			b.WriteByte(c)
		}
	}
	if b.Len() > 0 {
		pairs = append(pairs, b.String())
	}
	return pairs
}
