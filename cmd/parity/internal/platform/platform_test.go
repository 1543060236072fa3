// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSupabaseConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, SupabaseConfigPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetect_None(t *testing.T) {
	b := Detect(t.TempDir())
	if b.Kind != None {
		t.Errorf("Kind = %v, want none", b.Kind)
	}
	if b.Detected() {
		t.Error("Detected() = true for empty project")
	}
}

func TestDetect_Supabase(t *testing.T) {
	dir := t.TempDir()
	writeSupabaseConfig(t, dir, `
project_id = "demo"

[api]
enabled = true
port = 64321

[db]
port = 64322
major_version = 15

[studio]
port = 64323
`)

	b := Detect(dir)
	if b.Kind != Supabase {
		t.Fatalf("Kind = %v, want supabase", b.Kind)
	}
	if b.ParseErr != nil {
		t.Errorf("ParseErr = %v", b.ParseErr)
	}
	want := Ports{API: 64321, DB: 64322, Studio: 64323}
	if b.Ports != want {
		t.Errorf("Ports = %+v, want %+v", b.Ports, want)
	}
}

func TestDetect_MalformedFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSupabaseConfig(t, dir, "[api\nport = ")

	b := Detect(dir)
	if b.Kind != Supabase {
		t.Fatalf("Kind = %v, want supabase", b.Kind)
	}
	if b.ParseErr == nil {
		t.Error("expected ParseErr for malformed config")
	}
	if b.Ports != DefaultSupabasePorts() {
		t.Errorf("Ports = %+v, want defaults", b.Ports)
	}
}

func TestParseSupabasePorts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Ports
		wantErr bool
	}{
		{"empty uses defaults", "", DefaultSupabasePorts(), false},
		{"partial", "[api]\nport = 8000\n", Ports{API: 8000, DB: 54322, Studio: 54323}, false},
		{"out of range", "[studio]\nport = 70000\n", DefaultSupabasePorts(), true},
		{"wrong type", "[api]\nport = \"abc\"\n", DefaultSupabasePorts(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSupabasePorts([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSupabasePorts() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if None.String() != "none" || Supabase.String() != "supabase" {
		t.Errorf("unexpected names %q %q", None, Supabase)
	}
}
