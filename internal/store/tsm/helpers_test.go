package tsm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// gradient builds an RGBA-sized buffer with a lot of redundancy.
func gradient(name string, w, h int, seed byte) Template {
	data := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 4 * (y*w + x)
			data[i] = byte(x) + seed
			data[i+1] = byte(y)
			data[i+2] = seed
			data[i+3] = 0xff
		}
	}
	return Template{Name: name, Format: "png", Width: w, Height: h, Data: data}
}

func sampleTemplates() map[string]Template {
	return map[string]Template{
		"big_building": gradient("big_building", 64, 48, 1),
		"big_tree":     gradient("big_tree", 32, 32, 2),
		"cathedral":    gradient("cathedral", 48, 64, 3),
		"fireworks":    gradient("fireworks", 40, 40, 4),
		"hdr":          gradient("hdr", 64, 64, 5),
	}
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "store")
}

func mustOpen(t *testing.T, path string, opts ...Option) *TsmManager {
	t.Helper()
	m, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return m
}

func diffTemplates(want, got Template) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
