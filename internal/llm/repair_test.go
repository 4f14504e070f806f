package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "clean object",
			raw:  `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "clean array",
			raw:  `["a", "b"]`,
			want: `["a", "b"]`,
		},
		{
			name: "fenced with language tag and prose",
			raw:  "prefix ```json\n[\"a\", \"b\",]\n``` suffix",
			want: `["a", "b"]`,
		},
		{
			name: "fenced without language tag",
			raw:  "```\n{\"ok\": true}\n```",
			want: `{"ok": true}`,
		},
		{
			name: "prose around object",
			raw:  `Sure, here you go: {"answer": 42}. Hope that helps!`,
			want: `{"answer": 42}`,
		},
		{
			name: "trailing comma in object",
			raw:  `{"a": 1, "b": 2,}`,
			want: `{"a": 1, "b": 2}`,
		},
		{
			name: "array before object picks array",
			raw:  `["x", {"y": 1}]`,
			want: `["x", {"y": 1}]`,
		},
		{
			name:    "bare string",
			raw:     `"just a string"`,
			wantErr: true,
		},
		{
			name:    "no payload",
			raw:     "the model refused to answer",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "unclosed object",
			raw:     `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RepairJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("result is not valid JSON: %q", got)
			}
		})
	}
}

func TestDecodeStringList(t *testing.T) {
	got, err := decodeStringList(`["a", " b ", ""]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected list: %v", got)
	}

	got, err = decodeStringList(`{"queries": ["x", "y"]}`)
	if err != nil {
		t.Fatalf("unexpected error for wrapped list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("unexpected wrapped list: %v", got)
	}

	if _, err := decodeStringList(`{"n": 1}`); err == nil {
		t.Error("expected error for object without a string array")
	}
}
