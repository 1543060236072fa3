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
	"path/filepath"
	"testing"
)

func TestParseEnvFile(t *testing.T) {
	content := `# header
PLAIN=value
export EXPORTED=yes
DOUBLE="hello world"
SINGLE='a b'
INLINE=bare # trailing comment
EMPTY=
not an assignment

`
	f := ParseEnvFile([]byte(content))

	tests := []struct {
		key  string
		want string
	}{
		{"PLAIN", "value"},
		{"EXPORTED", "yes"},
		{"DOUBLE", "hello world"},
		{"SINGLE", "a b"},
		{"INLINE", "bare"},
		{"EMPTY", ""},
	}
	for _, tt := range tests {
		got, ok := f.Get(tt.key)
		if !ok {
			t.Errorf("Get(%q) missing", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, ok := f.Get("not"); ok {
		t.Error("garbage line parsed as assignment")
	}

	if got := string(f.Bytes()); got != content {
		t.Errorf("untouched file did not round-trip:\n%s\nwant\n%s", got, content)
	}
}

func TestEnvFile_SetPreservesPosition(t *testing.T) {
	f := ParseEnvFile([]byte("# top\nA=1\nB=2\n"))
	f.Set("A", "changed value")
	f.Set("C", "3")

	want := "# top\nA=\"changed value\"\nB=2\nC=3\n"
	if got := string(f.Bytes()); got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}

	reparsed := ParseEnvFile(f.Bytes())
	if v, _ := reparsed.Get("A"); v != "changed value" {
		t.Errorf("quoted value did not round-trip: %q", v)
	}
	if keys := reparsed.Keys(); len(keys) != 3 {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestReadWriteEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".env")

	f, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("ReadEnvFile(missing) error = %v", err)
	}
	if len(f.Keys()) != 0 {
		t.Error("missing file should be empty")
	}

	f.Set("KEY", "value")
	if err := WriteEnvFile(path, f); err != nil {
		t.Fatalf("WriteEnvFile() error = %v", err)
	}

	again, err := ReadEnvFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := again.Get("KEY"); v != "value" {
		t.Errorf("Get(KEY) = %q", v)
	}
}
