package cache

import (
	"strings"
	"testing"
)

func TestKeyBuilder_Build(t *testing.T) {
	kb := NewKeyBuilder()

	tests := []struct {
		name      string
		namespace string
		key       string
		wantKey   string
		wantError bool
	}{
		{
			name:      "safe key kept verbatim",
			namespace: "places",
			key:       "ChIJN1t_tDeuEmsRUsoyG83frY4",
			wantKey:   "places:ChIJN1t_tDeuEmsRUsoyG83frY4",
		},
		{
			name:      "path separators are hashed",
			namespace: "places",
			key:       "places/X/abc",
			wantKey:   "places:" + md5Hex([]byte("places/X/abc")),
		},
		{
			name:      "long keys are hashed",
			namespace: "ai_scores",
			key:       strings.Repeat("a", 300),
			wantKey:   "ai_scores:" + md5Hex([]byte(strings.Repeat("a", 300))),
		},
		{
			name:      "empty namespace",
			namespace: "",
			key:       "abc",
			wantError: true,
		},
		{
			name:      "empty key",
			namespace: "places",
			key:       "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := kb.Build(tt.namespace, tt.key)

			if tt.wantError {
				if err == nil {
					t.Errorf("Build() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Build() unexpected error: %v", err)
				return
			}

			if key != tt.wantKey {
				t.Errorf("Build() = %v, want %v", key, tt.wantKey)
			}
		})
	}
}

func TestKeyBuilder_BuildFromParams(t *testing.T) {
	kb := NewKeyBuilder()

	first, err := kb.BuildFromParams(map[string]interface{}{"placeId": "X", "model": "gemini"})
	if err != nil {
		t.Fatalf("BuildFromParams() unexpected error: %v", err)
	}

	second, err := kb.BuildFromParams(map[string]interface{}{"model": "gemini", "placeId": "X"})
	if err != nil {
		t.Fatalf("BuildFromParams() unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("equal params produced different keys: %s != %s", first, second)
	}

	if len(first) != 32 {
		t.Errorf("expected md5 hex key, got %q", first)
	}

	other, _ := kb.BuildFromParams(map[string]interface{}{"placeId": "Y", "model": "gemini"})
	if other == first {
		t.Errorf("different params produced the same key")
	}

	if _, err := kb.BuildFromParams(nil); err == nil {
		t.Errorf("BuildFromParams(nil) expected error")
	}

	if _, err := kb.BuildFromParams(map[string]interface{}{"bad": make(chan int)}); err == nil {
		t.Errorf("BuildFromParams() expected marshal error")
	}
}
