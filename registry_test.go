package acquire

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func newTestSource(t *testing.T, id string) *HardwareSource {
	t.Helper()
	source := NewHardwareSource(id, id, NewSimulatedBackend(SimulatedBackendConfig{Rows: 4, Cols: 4}),
		WithMinFramePeriod(time.Millisecond))
	return source
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	source := newTestSource(t, "nano_eels_1")
	registry.Register(source)
	defer registry.Close()

	if got := registry.SourceByID("nano_eels_1"); got != source {
		t.Fatal("lookup by id failed")
	}
	if got := registry.SourceByID("missing"); got != nil {
		t.Fatal("unknown id must return nil")
	}
}

func TestRegistryNotifiesAddedAndRemoved(t *testing.T) {
	registry := NewRegistry()
	var added, removed []*HardwareSource
	addSub := registry.SubscribeAdded(func(s *HardwareSource) { added = append(added, s) })
	defer addSub.Close()
	removeSub := registry.SubscribeRemoved(func(s *HardwareSource) { removed = append(removed, s) })
	defer removeSub.Close()

	source := newTestSource(t, "cam")
	defer source.Close()

	registry.Register(source)
	registry.Unregister(source)

	if len(added) != 1 || added[0] != source {
		t.Fatalf("added notifications = %v", added)
	}
	if len(removed) != 1 || removed[0] != source {
		t.Fatalf("removed notifications = %v", removed)
	}
	if registry.SourceByID("cam") != nil {
		t.Fatal("unregistered source must not resolve")
	}
}

func TestRegistryAliasChainsResolve(t *testing.T) {
	registry := NewRegistry()
	source := newTestSource(t, "nano_eels_1")
	registry.Register(source)
	defer registry.Close()

	registry.MakeAlias("nano_eels_1", "eels", "EELS")
	registry.MakeAlias("eels", "spectrometer", "Spectrometer")

	if got := registry.SourceByID("eels"); got != source {
		t.Fatal("direct alias failed to resolve")
	}
	if got := registry.SourceByID("spectrometer"); got != source {
		t.Fatal("chained alias failed to resolve")
	}

	ids := registry.SourceIDs()
	sort.Strings(ids)
	want := []string{"eels", "nano_eels_1", "spectrometer"}
	if len(ids) != len(want) {
		t.Fatalf("source ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("source ids = %v, want %v", ids, want)
		}
	}
}

func TestRegistryAliasCycleDoesNotHang(t *testing.T) {
	registry := NewRegistry()
	registry.MakeAlias("a", "b", "")
	registry.MakeAlias("b", "a", "")
	if got := registry.SourceByID("a"); got != nil {
		t.Fatal("cyclic alias must resolve to nothing")
	}
}

func TestRegistryLoadAliasFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	content := `aliases:
  - source: nano_eels_1
    alias: eels
    display_name: EELS
  - source: ""
    alias: broken
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write alias file: %v", err)
	}

	registry := NewRegistry()
	source := newTestSource(t, "nano_eels_1")
	registry.Register(source)
	defer registry.Close()

	if err := registry.LoadAliasFile(path); err != nil {
		t.Fatalf("load alias file: %v", err)
	}
	if got := registry.SourceByID("eels"); got != source {
		t.Fatal("alias from file failed to resolve")
	}
	if got := registry.SourceByID("broken"); got != nil {
		t.Fatal("incomplete entry must be skipped")
	}
}

func TestRegistryLoadAliasFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	content := "aliases:\n  - source: cam\n    alias: camera\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write alias file: %v", err)
	}
	t.Setenv(EnvAliasFile, path)

	registry := NewRegistry()
	source := newTestSource(t, "cam")
	registry.Register(source)
	defer registry.Close()

	if err := registry.LoadAliasFileFromEnv(); err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if registry.SourceByID("camera") != source {
		t.Fatal("alias from env file failed to resolve")
	}
}

func TestRegistryLoadAliasFileFromEnvUnsetIsNoop(t *testing.T) {
	t.Setenv(EnvAliasFile, "")
	registry := NewRegistry()
	if err := registry.LoadAliasFileFromEnv(); err != nil {
		t.Fatalf("unset env var must not be an error: %v", err)
	}
}

func TestRegistryLoadAliasFileRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	if err := os.WriteFile(path, []byte("aliases: [broken"), 0o644); err != nil {
		t.Fatalf("write alias file: %v", err)
	}
	registry := NewRegistry()
	if err := registry.LoadAliasFile(path); err == nil {
		t.Fatal("malformed YAML must be an error")
	}
}
