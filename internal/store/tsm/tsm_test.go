package tsm

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"templatestore/internal/audit"
	"templatestore/internal/utils"
	"testing"

	"github.com/google/go-cmp/cmp"
	jujuerrors "github.com/juju/errors"
)

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Write(ev audit.Event) {
	r.events = append(r.events, ev)
}

func TestRoundTrip(t *testing.T) {
	path := storePath(t)
	td := sampleTemplates()

	m := mustOpen(t, path)
	if err := m.AddTemplates(td); err != nil {
		t.Fatalf("add: %v", err)
	}

	reopened := mustOpen(t, path)
	for name, want := range td {
		got, err := reopened.GetTemplate(name)
		if err != nil {
			t.Fatalf("get %q: %v", name, err)
		}
		if diff := diffTemplates(want, got); diff != "" {
			t.Fatalf("template %q mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestOverwrite(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)

	first := gradient("x", 8, 8, 1)
	second := gradient("x", 16, 4, 9)
	if err := m.AddTemplates(map[string]Template{"logo": first}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.AddTemplates(map[string]Template{"logo": second}); err != nil {
		t.Fatalf("add: %v", err)
	}

	want := second
	want.Name = "logo"
	for _, mgr := range []*TsmManager{m, mustOpen(t, path)} {
		got, err := mgr.GetTemplate("logo")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := diffTemplates(want, got); diff != "" {
			t.Fatalf("expected second image (-want +got):\n%s", diff)
		}
		if mgr.Len() != 1 {
			t.Fatalf("expected 1 template, got %d", mgr.Len())
		}
	}
}

func TestRemoveMissingIsIdempotent(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)
	if err := m.AddTemplates(sampleTemplates()); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < 2; i++ {
		missing, err := m.RemoveTemplates([]string{"nope", "cathedral"})
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		want := []string{"nope"}
		if i == 1 {
			want = []string{"cathedral", "nope"}
		}
		if diff := cmp.Diff(want, missing); diff != "" {
			t.Fatalf("pass %d missing (-want +got):\n%s", i, diff)
		}
	}

	want := []string{"big_building", "big_tree", "fireworks", "hdr"}
	if diff := cmp.Diff(want, m.ListNames()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	for _, name := range want {
		got, err := m.GetTemplate(name)
		if err != nil {
			t.Fatalf("get %q: %v", name, err)
		}
		if diff := diffTemplates(sampleTemplates()[name], got); diff != "" {
			t.Fatalf("template %q changed (-want +got):\n%s", name, diff)
		}
	}
}

func TestRemoveDuplicateNames(t *testing.T) {
	m := mustOpen(t, storePath(t))
	if err := m.AddTemplates(sampleTemplates()); err != nil {
		t.Fatalf("add: %v", err)
	}
	missing, err := m.RemoveTemplates([]string{"hdr", "hdr"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing names, got %v", missing)
	}
}

func TestEmptyStoreBootstrap(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)

	if names := m.ListNames(); len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
	if _, err := m.GetTemplate("anything"); !jujuerrors.Is(err, jujuerrors.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("construction must not create the backing file: %v", err)
	}
	if m.Stale() {
		t.Fatalf("fresh store must not be stale")
	}
}

func TestAddEmptyStillPersists(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)
	if err := m.AddTemplates(nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected backing file: %v", err)
	}
	if names := mustOpen(t, path).ListNames(); len(names) != 0 {
		t.Fatalf("expected empty store, got %v", names)
	}
}

func TestAddRejectsEmptyName(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)
	err := m.AddTemplates(map[string]Template{"": gradient("", 2, 2, 0), "ok": gradient("ok", 2, 2, 0)})
	if !jujuerrors.Is(err, jujuerrors.NotValid) {
		t.Fatalf("expected not valid, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("rejected add must not mutate the store")
	}
}

func TestCompressionEfficacy(t *testing.T) {
	path := storePath(t)
	td := sampleTemplates()

	var raw int64
	for _, tpl := range td {
		raw += int64(len(tpl.Data))
	}

	m := mustOpen(t, path)
	if err := m.AddTemplates(td); err != nil {
		t.Fatalf("add: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() >= raw {
		t.Fatalf("expected store smaller than %d raw bytes, got %d", raw, st.Size())
	}
}

func TestFullRewriteConsistency(t *testing.T) {
	path := storePath(t)
	m := mustOpen(t, path)
	if err := m.AddTemplates(map[string]Template{
		"a": gradient("a", 4, 4, 1),
		"b": gradient("b", 4, 4, 2),
		"c": gradient("c", 4, 4, 3),
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.RemoveTemplates([]string{"a"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if diff := cmp.Diff([]string{"b", "c"}, mustOpen(t, path).ListNames()); diff != "" {
		t.Fatalf("reloaded names (-want +got):\n%s", diff)
	}
	if got := dirEntries(t, filepath.Dir(path)); len(got) != 1 {
		t.Fatalf("expected no leftover temp files, got %v", got)
	}
}

func TestCorruptStoreIsFatal(t *testing.T) {
	path := storePath(t)
	garbage := []byte("TPLS\x01garbage")
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Open(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(b, garbage) {
		t.Fatalf("corrupt file must be left untouched")
	}
}

func TestUnsupportedVersionIsFatal(t *testing.T) {
	path := storePath(t)
	if err := NewTsmStore(path).Save(sampleTemplates()); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	b[len(formatMagic)] = 9
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = Open(path)
	if !errors.Is(err, ErrCorrupt) || !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}

func TestWriteFailureKeepsMemory(t *testing.T) {
	path := storePath(t)
	fs := &faultyFilesystem{FilesystemExecutor: utils.NewFilesystemExecutor()}
	m := mustOpen(t, path, WithFilesystemHandler(fs))

	if err := m.AddTemplates(map[string]Template{"a": gradient("a", 4, 4, 1)}); err != nil {
		t.Fatalf("add: %v", err)
	}

	fs.failWrite = true
	err := m.AddTemplates(map[string]Template{"b": gradient("b", 4, 4, 2)})
	var we *WriteError
	if !errors.As(err, &we) || !errors.Is(err, ErrWrite) || we.Path != path {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if !m.Stale() {
		t.Fatalf("expected stale store after failed write")
	}
	if _, err := m.GetTemplate("b"); err != nil {
		t.Fatalf("memory must keep the mutation: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, mustOpen(t, path).ListNames()); diff != "" {
		t.Fatalf("disk must keep the last good save (-want +got):\n%s", diff)
	}

	fs.failWrite = false
	if err := m.Persist(); err != nil {
		t.Fatalf("retry persist: %v", err)
	}
	if m.Stale() {
		t.Fatalf("expected clean store after retry")
	}
	if diff := cmp.Diff([]string{"a", "b"}, mustOpen(t, path).ListNames()); diff != "" {
		t.Fatalf("reloaded names (-want +got):\n%s", diff)
	}
}

func TestTemplatesAreCopied(t *testing.T) {
	m := mustOpen(t, storePath(t))
	tpl := gradient("a", 4, 4, 1)
	if err := m.AddTemplates(map[string]Template{"a": tpl}); err != nil {
		t.Fatalf("add: %v", err)
	}
	tpl.Data[0] ^= 0xff

	got, err := m.GetTemplate("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data[0] == tpl.Data[0] {
		t.Fatalf("caller mutation leaked into the store")
	}
	got.Data[1] ^= 0xff

	again, _ := m.GetTemplate("a")
	if again.Data[1] == got.Data[1] {
		t.Fatalf("returned template aliases stored data")
	}
}

func TestMutationsAreAudited(t *testing.T) {
	rec := &recordingAuditor{}
	path := storePath(t)
	m, err := NewTsmManager(NewTsmStore(path), rec)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := m.AddTemplates(map[string]Template{"b": gradient("b", 2, 2, 0), "a": gradient("a", 2, 2, 0)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.RemoveTemplates([]string{"a", "zzz"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	add, rm := rec.events[0], rec.events[1]
	if add.Action != audit.ActionAdd || add.Result.Count != 2 || add.Runtime.Store != path {
		t.Fatalf("unexpected add event: %+v", add)
	}
	if diff := cmp.Diff([]string{"a", "b"}, add.Target.Names); diff != "" {
		t.Fatalf("add names (-want +got):\n%s", diff)
	}
	if rm.Action != audit.ActionRemove || rm.Result.Status != "ok" || rm.Result.Count != 1 {
		t.Fatalf("unexpected remove event: %+v", rm)
	}
	if diff := cmp.Diff([]string{"zzz"}, rm.Target.Missing); diff != "" {
		t.Fatalf("remove missing (-want +got):\n%s", diff)
	}
}
