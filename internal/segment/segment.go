// Package segment names the numbered output files of a recording session and
// orders them back for merging.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/facette/natsort"
)

// TimestampLayout is the local-time stamp embedded in a session's base name.
const TimestampLayout = "20060102-150405"

// ErrExists is returned when the next segment path is already taken.
var ErrExists = errors.New("segment file already exists")

// Namer produces segment paths for one session: Dir/Base.Ext for index 0,
// Dir/Base-N.Ext for index N.
type Namer struct {
	Dir  string
	Base string
	Ext  string // without dot
}

// NewNamer returns a Namer whose base is "<prefix>-<start in TimestampLayout>".
func NewNamer(dir, prefix, ext string, start time.Time) Namer {
	if dir == "" {
		dir = "."
	}
	return Namer{
		Dir:  dir,
		Base: prefix + "-" + start.Format(TimestampLayout),
		Ext:  strings.TrimPrefix(ext, "."),
	}
}

// Path returns the path for segment index i (i >= 0).
func (n Namer) Path(i int) string {
	name := n.Base
	if i > 0 {
		name += "-" + strconv.Itoa(i)
	}
	if n.Ext != "" {
		name += "." + n.Ext
	}
	return filepath.Join(n.Dir, name)
}

// Next returns Path(i) if nothing exists there yet, ErrExists otherwise.
func (n Namer) Next(i int) (string, error) {
	p := n.Path(i)
	if _, err := os.Lstat(p); err == nil {
		return "", fmt.Errorf("%s: %w", p, ErrExists)
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return p, nil
}

// Split parses a segment file name into its base and index. Names without a
// numeric "-N" suffix have index 0.
func Split(path string) (base string, index int) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(name, '-')
	if i <= 0 || i == len(name)-1 {
		return name, 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n <= 0 || name[i+1] == '0' {
		return name, 0
	}
	// "pbtv-20240101-120000" ends in a time stamp, not an index.
	if len(name[i+1:]) == 6 && looksLikeStamp(name[:i]) {
		return name, 0
	}
	return name[:i], n
}

func looksLikeStamp(prefix string) bool {
	j := strings.LastIndexByte(prefix, '-')
	if j < 0 {
		return false
	}
	d := prefix[j+1:]
	if len(d) != 8 {
		return false
	}
	_, err := strconv.Atoi(d)
	return err == nil
}

// Sort orders paths by session base (natural order) then segment index, so
// "x.ts, x-1.ts, x-2.ts, x-10.ts" come out in recording order.
func Sort(paths []string) {
	type key struct {
		base string
		idx  int
	}
	keys := make(map[string]key, len(paths))
	var bases []string
	seen := map[string]bool{}
	for _, p := range paths {
		b, i := Split(p)
		b = filepath.Join(filepath.Dir(p), b)
		keys[p] = key{b, i}
		if !seen[b] {
			seen[b] = true
			bases = append(bases, b)
		}
	}
	natsort.Sort(bases)
	rank := make(map[string]int, len(bases))
	for i, b := range bases {
		rank[b] = i
	}
	sort.SliceStable(paths, func(a, b int) bool {
		ka, kb := keys[paths[a]], keys[paths[b]]
		if ka.base != kb.base {
			return rank[ka.base] < rank[kb.base]
		}
		return ka.idx < kb.idx
	})
}

// Glob returns the segment files with extension ext in dir, in recording order.
func Glob(dir, ext string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*."+strings.TrimPrefix(ext, ".")))
	if err != nil {
		return nil, err
	}
	Sort(matches)
	return matches, nil
}
