package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"object", `{"a":1,"b":[true]}`, map[string]any{"a": 1.0, "b": []any{true}}},
		{"empty", "  ", map[string]any{}},
		{"scalar", `"x"`, "x"},
		{"truncated", `{"a":`, `{"a":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseArguments(tt.raw))
		})
	}
}

func TestArgumentsJSON(t *testing.T) {
	assert.Equal(t, "{}", ArgumentsJSON(nil))
	assert.Equal(t, `{"a":1}`, ArgumentsJSON(`{"a":1}`), "raw JSON passes through")
	assert.Equal(t, `"not json"`, ArgumentsJSON("not json"))
	assert.JSONEq(t, `{"k":[1,2]}`, ArgumentsJSON(map[string]any{"k": []int{1, 2}}))
}

func TestArgumentsObject(t *testing.T) {
	assert.Equal(t, map[string]any{}, ArgumentsObject(nil))
	assert.Equal(t, map[string]any{"a": 1.0}, ArgumentsObject(`{"a":1}`))
	assert.Equal(t, map[string]any{"value": "oops"}, ArgumentsObject("oops"))
	assert.Equal(t, map[string]any{"value": 3}, ArgumentsObject(3))

	type pair struct {
		A int `json:"a"`
	}
	assert.Equal(t, map[string]any{"a": 2.0}, ArgumentsObject(pair{A: 2}))
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "plain", ResultText("plain"))
	assert.Equal(t, "null", ResultText(nil))
	assert.Equal(t, `{"ok":true}`, ResultText(map[string]any{"ok": true}))
	assert.Equal(t, "42", ResultText(42))
}

func TestDeepCopy(t *testing.T) {
	orig := map[string]any{"list": []any{map[string]any{"k": "v"}}}

	cp := DeepCopy(orig).(map[string]any)
	cp["list"].([]any)[0].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", orig["list"].([]any)[0].(map[string]any)["k"])
}

func TestSchemaJSON(t *testing.T) {
	assert.JSONEq(t, `{"type":"object"}`, SchemaJSON(map[string]any{"type": "object"}))
	assert.Equal(t, "{}", SchemaJSON(map[string]any{"bad": func() {}}))
}

func TestRenderTemplate(t *testing.T) {
	vars := map[string]any{
		"task":  "summarize",
		"tools": []string{"search", "fetch"},
		"args":  map[string]any{"n": 3},
	}

	got, err := RenderTemplate(`{{upper .task}} using {{join ", " .tools}} with {{json .args}} in {{.lang | default "English"}}`, vars)
	require.NoError(t, err)
	assert.Equal(t, `SUMMARIZE using search, fetch with {"n":3} in English`, got)

	got, err = RenderTemplate("no markers {", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers {", got)

	_, err = RenderTemplate("{{.task", vars)
	assert.ErrorContains(t, err, "parse instruction")
}
