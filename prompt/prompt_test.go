package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/tmp/project")

	if len(loader.dirs) != 2 {
		t.Errorf("expected 2 search dirs, got %d", len(loader.dirs))
	}
	if loader.cache == nil {
		t.Error("cache should be initialized")
	}
}

func TestLoader_LoadEmbedded(t *testing.T) {
	loader := NewLoader("/nonexistent")

	content, err := loader.LoadWithVars("subagent", map[string]any{
		"Name":        "reviewer",
		"Description": "finds bugs",
		"Tools":       []string{"read", "grep"},
		"Task":        "Check main.go",
	})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}

	for _, want := range []string{"reviewer sub-agent: finds bugs", "read, grep", "Check main.go"} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestLoader_LoadFromDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	promptsDir := filepath.Join(dir, ".agentgraph", "prompts")
	if err := os.MkdirAll(promptsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(promptsDir, "subagent.txt"), []byte("custom {{.Task}}"), 0644); err != nil {
		t.Fatal(err)
	}

	content, err := NewLoader(dir).LoadWithVars("subagent", map[string]any{"Task": "x"})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	if content != "custom x" {
		t.Errorf("content = %q, want %q", content, "custom x")
	}
}

func TestLoader_AskUser(t *testing.T) {
	content, err := NewEmbeddedLoader().LoadWithVars("ask_user", map[string]any{
		"Question": "Ship it?",
		"Choices":  []string{"yes", "no"},
	})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	want := "Ship it?\n\nOptions:\n  - yes\n  - no\n"
	if content != want {
		t.Errorf("content = %q, want %q", content, want)
	}
}

func TestLoader_NotFound(t *testing.T) {
	_, err := NewEmbeddedLoader().Load("missing")
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
	if NewEmbeddedLoader().Exists("missing") {
		t.Error("Exists(missing) = true")
	}
}

func TestLoader_List(t *testing.T) {
	names, err := NewEmbeddedLoader().List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"ask_user", "context_summary", "subagent"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", names, want)
	}
}

func TestLoader_Render(t *testing.T) {
	loader := NewEmbeddedLoader()
	out, err := loader.Render("Hello {{title .name}}, {{default \"none\" .missing}}", map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hello Ada, none" {
		t.Errorf("Render = %q", out)
	}
}

func TestLoader_ConcurrentLoads(t *testing.T) {
	loader := NewEmbeddedLoader()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.LoadWithVars("context_summary", map[string]any{"Percent": 85}); err != nil {
				t.Errorf("LoadWithVars: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestIndentString(t *testing.T) {
	got := indentString(2, "a\n\nb")
	if got != "  a\n\n  b" {
		t.Errorf("indentString = %q", got)
	}
}

func TestBuilder(t *testing.T) {
	got := NewBuilder().
		Add("Intro").
		AddSection("Goal", "Do it").
		AddList("Steps", []string{"one", "two"}).
		Build()

	want := "Intro\n\n## Goal\n\nDo it\n\n## Steps\n\n- one\n- two\n"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}
