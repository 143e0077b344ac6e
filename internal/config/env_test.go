package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile_missing(t *testing.T) {
	err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("missing file should return nil: %v", err)
	}
}

func TestLoadEnvFile_setsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PBTV_FOO=bar\n# comment\nPBTV_BAZ=quux\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PBTV_FOO", "old")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("PBTV_FOO") != "bar" {
		t.Errorf("PBTV_FOO = %q", os.Getenv("PBTV_FOO"))
	}
	if os.Getenv("PBTV_BAZ") != "quux" {
		t.Errorf("PBTV_BAZ = %q", os.Getenv("PBTV_BAZ"))
	}
	os.Unsetenv("PBTV_BAZ")
}

func TestLoadEnvFile_unquote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(`PBTV_X="hello world"`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PBTV_X", "")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("PBTV_X") != "hello world" {
		t.Errorf("PBTV_X = %q", os.Getenv("PBTV_X"))
	}
}
