package voice

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/iabetor/narrator/internal/audio"
)

func tone(freq float64, rate, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return s
}

func TestClassifySamples(t *testing.T) {
	c := NewPitchClassifier()
	tests := []struct {
		name string
		freq float64
		want Gender
	}{
		{"low voice", 110, Male},
		{"high voice", 220, Female},
		{"out of range", 1000, Undetermined},
	}
	for _, tt := range tests {
		got := c.ClassifySamples(tone(tt.freq, 16000, 16000), 16000)
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestClassifySamples_Silence(t *testing.T) {
	c := NewPitchClassifier()
	if g := c.ClassifySamples(make([]float32, 1024), 16000); g != Undetermined {
		t.Errorf("silence: got %s, want undetermined", g)
	}
	if g := c.ClassifySamples(nil, 16000); g != Undetermined {
		t.Errorf("empty: got %s, want undetermined", g)
	}
}

func TestClassify_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := audio.WriteWAV(path, tone(200, 16000, 16000), 16000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	g, err := NewPitchClassifier().Classify(path)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if g != Female {
		t.Errorf("got %s, want female", g)
	}

	if _, err := NewPitchClassifier().Classify(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGenderString(t *testing.T) {
	if Male.String() != "male" || Female.String() != "female" || Undetermined.String() != "undetermined" {
		t.Error("unexpected gender names")
	}
}
