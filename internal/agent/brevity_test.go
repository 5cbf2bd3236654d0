package agent

import (
	"strings"
	"testing"
)

func TestEnforceBrevity(t *testing.T) {
	exactLimit := strings.Repeat("word ", 34) + "word"

	tests := []struct {
		name     string
		in       string
		maxWords int
		want     string
	}{
		{
			name:     "within limit unchanged",
			in:       "Turn left at the next light.",
			maxWords: 35,
			want:     "Turn left at the next light.",
		},
		{
			name:     "exactly the limit unchanged",
			in:       exactLimit,
			maxWords: 35,
			want:     exactLimit,
		},
		{
			name:     "early sentence boundary wins",
			in:       "Got it. " + strings.Repeat("extra ", 40),
			maxWords: 35,
			want:     "Got it.",
		},
		{
			name:     "late boundary falls back to hard truncation",
			in:       strings.Repeat("pad ", 50) + "end. tail",
			maxWords: 4,
			want:     "pad pad pad pad.",
		},
		{
			name:     "no boundary truncates to limit with period",
			in:       strings.Repeat("go ", 50),
			maxWords: 3,
			want:     "go go go.",
		},
		{
			name:     "dangling punctuation stripped before period",
			in:       "one two three, " + strings.Repeat("four ", 40),
			maxWords: 3,
			want:     "one two three.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := enforceBrevity(tt.in, tt.maxWords); got != tt.want {
				t.Errorf("enforceBrevity(%q, %d) = %q, want %q", tt.in, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestEnforceBrevity_LimitWordCount(t *testing.T) {
	in := strings.Repeat("alpha ", 100)
	got := enforceBrevity(in, 35)
	if n := len(strings.Fields(got)); n != 35 {
		t.Errorf("word count = %d, want 35", n)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("missing terminating period: %q", got)
	}
}
