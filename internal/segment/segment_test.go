package segment

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNamer_pathSequence(t *testing.T) {
	start := time.Date(2024, 5, 4, 13, 2, 9, 0, time.Local)
	n := NewNamer("/rec", "pbtv", ".ts", start)
	want := []string{
		"/rec/pbtv-20240504-130209.ts",
		"/rec/pbtv-20240504-130209-1.ts",
		"/rec/pbtv-20240504-130209-2.ts",
		"/rec/pbtv-20240504-130209-3.ts",
	}
	for i, w := range want {
		if got := n.Path(i); got != w {
			t.Errorf("Path(%d) = %q, want %q", i, got, w)
		}
	}
}

func TestNamer_nextRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	n := Namer{Dir: dir, Base: "pbtv-x", Ext: "ts"}
	if err := os.WriteFile(n.Path(1), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if p, err := n.Next(0); err != nil || p != n.Path(0) {
		t.Fatalf("Next(0) = %q, %v", p, err)
	}
	_, err := n.Next(1)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Next(1) err = %v, want ErrExists", err)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		base string
		idx  int
	}{
		{"pbtv-20240504-130209.ts", "pbtv-20240504-130209", 0},
		{"pbtv-20240504-130209-1.ts", "pbtv-20240504-130209", 1},
		{"/a/b/pbtv-20240504-130209-12.ts", "pbtv-20240504-130209", 12},
		{"show-2.ts", "show", 2},
		{"show-02.ts", "show-02", 0},
		{"show.ts", "show", 0},
		{"show-.ts", "show-", 0},
	}
	for _, tt := range tests {
		base, idx := Split(tt.in)
		if base != tt.base || idx != tt.idx {
			t.Errorf("Split(%q) = %q,%d want %q,%d", tt.in, base, idx, tt.base, tt.idx)
		}
	}
}

func TestSort_recordingOrder(t *testing.T) {
	paths := []string{
		"pbtv-20240504-130209-10.ts",
		"pbtv-20240504-090000-1.ts",
		"pbtv-20240504-130209-2.ts",
		"pbtv-20240504-130209.ts",
		"pbtv-20240504-090000.ts",
		"pbtv-20240504-130209-1.ts",
	}
	Sort(paths)
	want := []string{
		"pbtv-20240504-090000.ts",
		"pbtv-20240504-090000-1.ts",
		"pbtv-20240504-130209.ts",
		"pbtv-20240504-130209-1.ts",
		"pbtv-20240504-130209-2.ts",
		"pbtv-20240504-130209-10.ts",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("Sort = %q\nwant %q", paths, want)
	}
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"s-2.ts", "s.ts", "s-1.ts", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Glob(dir, "ts")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "s.ts"), filepath.Join(dir, "s-1.ts"), filepath.Join(dir, "s-2.ts")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Glob = %q, want %q", got, want)
	}
}
