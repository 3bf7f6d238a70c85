package prompt

import (
	"strings"
	"testing"
)

func TestBuiltinTemplatesCompile(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	for _, name := range []string{
		MapInfoGeneration, MonsterGeneration, QuestGeneration,
		NarrativeEvent, ChoiceGeneration, OpeningNarrative, QuestCompletionText,
	} {
		if _, ok := r.Lookup(name); !ok {
			t.Fatalf("builtin template %q not registered", name)
		}
	}
}

func TestRenderRequiredParams(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := r.Render(MapInfoGeneration, map[string]any{}); err == nil {
		t.Fatalf("missing required param should error")
	}
	out, err := r.Render(MapInfoGeneration, map[string]any{"depth": 3, "theme": "熔岩洞窟"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "第3层") || !strings.Contains(out, "熔岩洞窟") {
		t.Fatalf("render lost params: %q", out)
	}
}

func TestRenderOptionalDefaultsEmpty(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	out, err := r.Render(NarrativeEvent, map[string]any{"action": "打开了宝箱", "outcome": "获得了宝石"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "地点:") {
		t.Fatalf("absent optional rendered its section: %q", out)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if err := r.Register(Template{Name: MapInfoGeneration, Text: "x"}); err == nil {
		t.Fatalf("duplicate registration should error")
	}
}

func TestSchemaLookup(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Schema(MonsterGeneration) == nil {
		t.Fatalf("monster template should carry a schema")
	}
	if r.Schema(NarrativeEvent) != nil {
		t.Fatalf("text template should not carry a schema")
	}
}
