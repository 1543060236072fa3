// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/parity/cmd/parity/config"
)

// EnvFile is a dotenv file that keeps comments, blank lines, and ordering
// intact across a read-modify-write cycle.
//
// Only lines touched by Set are re-rendered; everything else is written
// back byte for byte.
type EnvFile struct {
	lines []envLine
	index map[string]int
}

type envLine struct {
	raw   string
	key   string
	value string
	dirty bool
}

// ParseEnvFile parses dotenv content. Accepted line forms:
//
//	KEY=value
//	export KEY=value
//	KEY="quoted value"
//	KEY='single quoted'
//	# comment
//
// Lines that match none of these are preserved verbatim and ignored.
func ParseEnvFile(data []byte) *EnvFile {
	f := &EnvFile{index: make(map[string]int)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		line := envLine{raw: raw}
		if key, value, ok := parseAssignment(raw); ok {
			line.key = key
			line.value = value
			f.index[key] = len(f.lines)
		}
		f.lines = append(f.lines, line)
	}
	return f
}

func parseAssignment(raw string) (string, string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", "", false
	}
	s = strings.TrimPrefix(s, "export ")
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	value = strings.TrimSpace(value)

	switch {
	case len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"':
		if unq, err := strconv.Unquote(value); err == nil {
			value = unq
		} else {
			value = value[1 : len(value)-1]
		}
	case len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'':
		value = value[1 : len(value)-1]
	default:
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
	}
	return key, value, true
}

// Get returns the value for key.
func (f *EnvFile) Get(key string) (string, bool) {
	i, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.lines[i].value, true
}

// Set replaces the value of key in place, or appends it.
func (f *EnvFile) Set(key, value string) {
	if i, ok := f.index[key]; ok {
		f.lines[i].value = value
		f.lines[i].dirty = true
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, envLine{key: key, value: value, dirty: true})
}

// AppendComment adds a comment line.
func (f *EnvFile) AppendComment(text string) {
	f.lines = append(f.lines, envLine{raw: "# " + text})
}

// Keys returns assigned keys in file order.
func (f *EnvFile) Keys() []string {
	var keys []string
	for _, l := range f.lines {
		if l.key != "" {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// Bytes renders the file.
func (f *EnvFile) Bytes() []byte {
	var b bytes.Buffer
	for _, l := range f.lines {
		if l.dirty {
			b.WriteString(l.key + "=" + quoteValue(l.value))
		} else {
			b.WriteString(l.raw)
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func quoteValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t#\"'\\$`") {
		return strconv.Quote(v)
	}
	return v
}

// ReadEnvFile loads path. A missing file is an empty EnvFile.
func ReadEnvFile(path string) (*EnvFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseEnvFile(nil), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseEnvFile(data), nil
}

// WriteEnvFile replaces path wholesale with f, mode 0600.
func WriteEnvFile(path string, f *EnvFile) error {
	return config.WriteFileAtomic(path, f.Bytes(), 0o600)
}
