package orchestrator

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		rewrite  bool
		parts    []string
		trim     bool
		caption  string
	}{
		{
			name:     "pause and trim",
			sentence: "Hello‡pause‡world-",
			parts:    []string{"Hello", "world"},
			trim:     true,
			caption:  "Hello world",
		},
		{
			name:     "plain",
			sentence: "Just one sentence.",
			parts:    []string{"Just one sentence."},
			caption:  "Just one sentence.",
		},
		{
			name:     "leading pause yields blank part",
			sentence: "‡pause‡Chapter one",
			parts:    []string{"", "Chapter one"},
			caption:  " Chapter one",
		},
		{
			name:     "periods rewritten per part",
			sentence: "One. Two.‡pause‡Three.",
			rewrite:  true,
			parts:    []string{"One—  Two— ", "Three— "},
			caption:  "One. Two. Three.",
		},
		{
			name:     "dash inside is kept",
			sentence: "well-known fact",
			parts:    []string{"well-known fact"},
			caption:  "well-known fact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, trim, caption := Split(tt.sentence, tt.rewrite)
			if !reflect.DeepEqual(parts, tt.parts) {
				t.Errorf("parts = %q, want %q", parts, tt.parts)
			}
			if trim != tt.trim {
				t.Errorf("trim = %v, want %v", trim, tt.trim)
			}
			if caption != tt.caption {
				t.Errorf("caption = %q, want %q", caption, tt.caption)
			}
		})
	}
}
