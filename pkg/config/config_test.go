package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signatures.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleFile = `
signatures:
  - name: unit-table
    pattern: "48 03 C7 49 8B 8C C6"
    ops: ["offset 7", "cmpi32 0x100000"]
    fallbacks:
      - pattern: "48 03 C7 49 8B 8C ??"
        ops: ["offset 7"]
  - name: unit-count
    pattern: "8B 05 ?? ?? ?? ??"
  - name: menu-handler
    pattern: "E8 ?? ?? ?? ?? 48 8D 0D"
    ops: ["offset 1", "follow", 'strcmp "Menu"']
`

func TestLoadAndBuild(t *testing.T) {
	f, err := Load(writeSigFile(t, sampleFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Signatures) != 3 {
		t.Fatalf("loaded %d signatures, want 3", len(f.Signatures))
	}

	reg, err := f.Build()
	if err != nil {
		t.Fatal(err)
	}
	names := reg.Names("")
	want := []string{"menu-handler", "unit-count", "unit-table"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Names = %v, want %v", names, want)
	}

	fb, ok := reg.Lookup("unit-table")
	if !ok {
		t.Fatal("unit-table not registered")
	}
	if got := len(fb.Configs()); got != 2 {
		t.Errorf("unit-table has %d configurations, want primary plus one fallback", got)
	}

	fb, _ = reg.Lookup("unit-count")
	if got := len(fb.Configs()); got != 1 {
		t.Errorf("unit-count has %d configurations, want 1", got)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("loading a missing file should fail")
	}
	if _, err := Load(writeSigFile(t, "signatures: [{nonsense: true}]")); err == nil {
		t.Error("unknown YAML fields should be rejected")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantIn   string
	}{
		{
			"unnamed signature",
			"signatures: [{pattern: \"90\"}]",
			"has no name",
		},
		{
			"lowercase pattern",
			"signatures: [{name: a, pattern: \"9a\"}]",
			`signature "a"`,
		},
		{
			"bad op",
			"signatures: [{name: a, pattern: \"90\", ops: [\"jump 3\"]}]",
			"unknown operation",
		},
		{
			"bad fallback",
			"signatures: [{name: a, pattern: \"90\", fallbacks: [{pattern: \"x\"}]}]",
			"fallback 0",
		},
		{
			"duplicate name",
			"signatures: [{name: a, pattern: \"90\"}, {name: a, pattern: \"91\"}]",
			"registered twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load(writeSigFile(t, tt.contents))
			if err != nil {
				t.Fatal(err)
			}
			_, err = f.Build()
			if err == nil {
				t.Fatal("Build should fail")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error %q does not mention %q", err, tt.wantIn)
			}
		})
	}
}
