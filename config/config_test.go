package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noGitRoot(string) (string, error) { return "", nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_Defaults(t *testing.T) {
	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults: map[string]string{"max_steps": "1000"},
	}, "", "")

	cfg := resolver.Resolve()
	if got := cfg.Get("max_steps"); got != "1000" {
		t.Errorf("max_steps = %q, want 1000", got)
	}
	if got := cfg.Source("max_steps"); got != SourceDefault {
		t.Errorf("source = %q, want %q", got, SourceDefault)
	}
}

func TestResolver_Priority(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	local := filepath.Join(dir, "local.yaml")
	writeFile(t, global, "max_steps: 10\nlog_level: debug\nretry_backoff: 2s\n")
	writeFile(t, local, "max_steps: 20\nlog_level: warn\n")
	t.Setenv("TEST_AG_LOG_LEVEL", "error")

	resolver := NewResolverWithPaths(ResolverConfig{
		EnvPrefix: "TEST_AG_",
		Defaults:  EngineDefaults(),
	}, global, local)
	cfg := resolver.Resolve()

	tests := []struct {
		key    string
		want   string
		source Source
	}{
		{KeyRetryBackoff, "2s", SourceGlobal},
		{KeyMaxSteps, "20", SourceLocal},
		{KeyLogLevel, "error", SourceEnv},
		{KeyLogFormat, "text", SourceDefault},
	}
	for _, tt := range tests {
		if got := cfg.Get(tt.key); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
		if got := cfg.Source(tt.key); got != tt.source {
			t.Errorf("%s source = %q, want %q", tt.key, got, tt.source)
		}
	}
}

func TestResolver_GlobalFromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, ".config", "testapp", "config.yaml"), "max_steps: 7\n")

	resolver := NewResolver(ResolverConfig{
		GlobalConfigDir: "testapp",
		Defaults:        map[string]string{"max_steps": "1"},
		GitRootFinder:   noGitRoot,
	})
	if got := resolver.Resolve().Get("max_steps"); got != "7" {
		t.Errorf("max_steps = %q, want 7", got)
	}
	if resolver.GitRoot() != "" || resolver.LocalPath() != "" {
		t.Errorf("expected no local config without a git root")
	}
}

func TestResolver_LocalFromGitRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".agentgraph.yaml"), "parallel_limit: 4\n")

	resolver := NewResolver(ResolverConfig{
		LocalConfigName: ".agentgraph.yaml",
		Defaults:        map[string]string{"parallel_limit": "0"},
		GitRootFinder:   func(string) (string, error) { return root, nil },
	})
	cfg := resolver.Resolve()
	if got := cfg.Get("parallel_limit"); got != "4" {
		t.Errorf("parallel_limit = %q, want 4", got)
	}
	if cfg.Source("parallel_limit") != SourceLocal {
		t.Errorf("source = %q, want local", cfg.Source("parallel_limit"))
	}
}

func TestResolver_ResolveWithFlags(t *testing.T) {
	resolver := NewResolverWithPaths(ResolverConfig{Defaults: EngineDefaults()}, "", "")
	cfg := resolver.ResolveWithFlags(map[string]string{KeyMaxSteps: "5", KeyLogLevel: ""})

	if cfg.Get(KeyMaxSteps) != "5" || cfg.Source(KeyMaxSteps) != SourceFlag {
		t.Errorf("max_steps = %q (%s), want 5 (flag)", cfg.Get(KeyMaxSteps), cfg.Source(KeyMaxSteps))
	}
	if cfg.Get(KeyLogLevel) != "info" {
		t.Errorf("empty flag should not override, got %q", cfg.Get(KeyLogLevel))
	}
}

func TestResolver_ValidKeys(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.yaml")
	writeFile(t, local, "max_steps: 3\nbogus: 1\n")

	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults:  EngineDefaults(),
		ValidKeys: EngineKeys,
		ErrWriter: &discard{},
	}, "", local)
	cfg := resolver.Resolve()

	if cfg.Get("bogus") != "" {
		t.Error("unknown key should be ignored")
	}
	if cfg.Get(KeyMaxSteps) != "3" {
		t.Errorf("max_steps = %q, want 3", cfg.Get(KeyMaxSteps))
	}
	if len(resolver.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", resolver.Warnings)
	}
}

func TestResolver_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.yaml")
	writeFile(t, local, "max_steps: [unclosed\n")

	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults:  EngineDefaults(),
		ErrWriter: &discard{},
	}, "", local)
	cfg := resolver.Resolve()

	if cfg.Get(KeyMaxSteps) != "1000" {
		t.Errorf("max_steps = %q, want default", cfg.Get(KeyMaxSteps))
	}
	if len(resolver.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", resolver.Warnings)
	}
}

func TestResolved_Typed(t *testing.T) {
	resolver := NewResolverWithPaths(ResolverConfig{Defaults: map[string]string{
		"n":     "12",
		"f":     "0.5",
		"b":     "true",
		"d":     "250ms",
		"ms":    "1500",
		"bad_n": "x",
	}}, "", "")
	cfg := resolver.Resolve()

	if n, err := cfg.Int("n"); err != nil || n != 12 {
		t.Errorf("Int = %d, %v", n, err)
	}
	if f, err := cfg.Float("f"); err != nil || f != 0.5 {
		t.Errorf("Float = %v, %v", f, err)
	}
	if b, err := cfg.Bool("b"); err != nil || !b {
		t.Errorf("Bool = %v, %v", b, err)
	}
	if d, err := cfg.Duration("d"); err != nil || d != 250*time.Millisecond {
		t.Errorf("Duration = %v, %v", d, err)
	}
	if d, err := cfg.Duration("ms"); err != nil || d != 1500*time.Millisecond {
		t.Errorf("Duration(ms) = %v, %v", d, err)
	}
	if _, err := cfg.Int("bad_n"); err == nil {
		t.Error("expected parse error")
	}
	if n, err := cfg.Int("missing"); err != nil || n != 0 {
		t.Errorf("missing Int = %d, %v", n, err)
	}
}

func TestResolved_AllAndKeys(t *testing.T) {
	cfg := NewResolverWithPaths(ResolverConfig{Defaults: map[string]string{"b": "2", "a": "1"}}, "", "").Resolve()

	all := cfg.All()
	all["a"] = "changed"
	if cfg.Get("a") != "1" {
		t.Error("All() should return a copy")
	}
	keys := cfg.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := findGitRoot(nested)
	if err != nil {
		t.Fatalf("findGitRoot() error = %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("findGitRoot() = %q, want %q", got, want)
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"x", "x"},
		{true, "true"},
		{3, "3"},
		{0.25, "0.25"},
		{[]any{1}, ""},
	}
	for _, tt := range tests {
		if got := toString(tt.in); got != tt.want {
			t.Errorf("toString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestSource_Overrides(t *testing.T) {
	tests := []struct {
		src, other Source
		want       bool
	}{
		{SourceFlag, SourceEnv, true},
		{SourceEnv, SourceLocal, true},
		{SourceLocal, SourceGlobal, true},
		{SourceGlobal, SourceDefault, true},
		{SourceLocal, SourceLocal, true},
		{SourceDefault, SourceGlobal, false},
		{SourceGlobal, SourceEnv, false},
		{Source("bogus"), SourceDefault, false},
		{SourceDefault, Source(""), true},
	}
	for _, tt := range tests {
		if got := tt.src.Overrides(tt.other); got != tt.want {
			t.Errorf("%q.Overrides(%q) = %v, want %v", tt.src, tt.other, got, tt.want)
		}
	}
}

func TestResolved_SetKeepsHigherLayer(t *testing.T) {
	cfg := &Resolved{values: map[string]string{}, sources: map[string]Source{}}
	cfg.set("max_steps", "5", SourceEnv)
	cfg.set("max_steps", "9", SourceGlobal)

	if got := cfg.Get("max_steps"); got != "5" {
		t.Errorf("max_steps = %q, want 5", got)
	}
	if got := cfg.Source("max_steps"); got != SourceEnv {
		t.Errorf("source = %q, want env", got)
	}
}
