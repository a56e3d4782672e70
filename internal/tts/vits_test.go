package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/voice"
)

func TestSelectCheckpoint(t *testing.T) {
	spec, _ := DefaultCatalog().Lookup("vits", "internal")
	tests := []struct {
		iso1, iso3 string
		wantRepo   string
	}{
		{"en", "eng", "tts_models/en/vctk/vits"},
		{"de", "deu", "tts_models/de/thorsten/vits"},
		{"ca", "cat", "tts_models/ca/custom/vits"},
		{"", "ewe", "tts_models/ewe/openbible/vits"},
		{"ee", "ewe", "tts_models/ewe/openbible/vits"},
	}
	for _, tt := range tests {
		repo, _, err := selectCheckpoint(spec, tt.iso1, tt.iso3)
		if err != nil {
			t.Errorf("selectCheckpoint(%s, %s): %v", tt.iso1, tt.iso3, err)
			continue
		}
		if repo != tt.wantRepo {
			t.Errorf("selectCheckpoint(%s, %s) = %s, want %s", tt.iso1, tt.iso3, repo, tt.wantRepo)
		}
	}

	if _, _, err := selectCheckpoint(spec, "zz", "zzz"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestBuiltinSpeaker(t *testing.T) {
	spec, _ := DefaultCatalog().Lookup("vits", "internal")
	if got := builtinSpeaker(spec, "en", "eng"); got != "p262" {
		t.Errorf("eng speaker = %q, want p262", got)
	}
	if got := builtinSpeaker(spec, "ca", "cat"); got != "09901" {
		t.Errorf("cat speaker = %q, want 09901", got)
	}
	if got := builtinSpeaker(spec, "de", "deu"); got != "" {
		t.Errorf("deu speaker = %q, want empty", got)
	}
}

func TestVITS_CheckpointNotFoundLeavesNoState(t *testing.T) {
	env := newTestEnv(t, "vits")
	env.cfg.Session.Language = "zzz"
	env.cfg.Session.LanguageISO1 = ""
	a := env.adapter(t)

	err := a.EnsureLoaded(context.Background())
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
	if env.cache.Len() != 0 {
		t.Errorf("cache holds %d entries, want 0", env.cache.Len())
	}
	if len(env.loader.apiRepos) != 0 {
		t.Error("loader should not be called")
	}
}

func TestVITS_BuiltinSynthesis(t *testing.T) {
	env := newTestEnv(t, "vits")
	a := env.adapter(t)
	ctx := context.Background()

	if err := a.EnsureLoaded(ctx); err != nil {
		t.Fatal(err)
	}
	samples, err := a.SynthesizeFragment(ctx, "hello", "", runtime.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 100 {
		t.Errorf("got %d samples", len(samples))
	}
	if env.loader.apiRepos[0] != "tts_models/en/vctk/vits" {
		t.Errorf("repo = %s", env.loader.apiRepos[0])
	}
	if env.loader.synth.reqs[0].Speaker != "p262" {
		t.Errorf("speaker = %q, want p262", env.loader.synth.reqs[0].Speaker)
	}
	if a.SampleRate() != 22050 {
		t.Errorf("SampleRate = %d, want 22050", a.SampleRate())
	}
	if len(env.loader.vcModels) != 0 {
		t.Error("voice conversion model loaded without a voice")
	}
}

func TestVITS_VoiceConversionWithPitchShift(t *testing.T) {
	env := newTestEnv(t, "vits")
	voiceRef := filepath.Join(env.cfg.Paths.VoicesDir, "eng", "adult", "male", "Clone_24000.wav")
	env.cfg.Session.Voice = voiceRef
	env.classifier.genders[voiceRef] = voice.Male
	env.classifier.other = voice.Female
	a := env.adapter(t)
	ctx := context.Background()

	if err := a.EnsureLoaded(ctx); err != nil {
		t.Fatal(err)
	}
	if a.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000 with voice conversion", a.SampleRate())
	}
	if len(env.loader.vcModels) != 1 || env.loader.vcModels[0] != DefaultCatalog().VCModel {
		t.Errorf("vc models = %v", env.loader.vcModels)
	}

	for i := 0; i < 3; i++ {
		samples, err := a.SynthesizeFragment(ctx, "hello", voiceRef, runtime.Params{})
		if err != nil {
			t.Fatalf("SynthesizeFragment: %v", err)
		}
		if len(samples) != 160 {
			t.Errorf("got %d samples, want converted output", len(samples))
		}
	}

	if env.classifier.calls != 2 {
		t.Errorf("classifier called %d times, want 2", env.classifier.calls)
	}
	if len(env.shifter.semitones) != 3 || env.shifter.semitones[0] != -4 {
		t.Errorf("shifts = %v, want three -4 shifts", env.shifter.semitones)
	}
	for _, call := range env.loader.vc.calls {
		if call[1] != voiceRef {
			t.Errorf("target = %s, want %s", call[1], voiceRef)
		}
	}

	entries, _ := os.ReadDir(filepath.Join(env.cfg.Paths.VoicesDir, "proc"))
	if len(entries) != 0 {
		t.Errorf("%d temporary files left behind", len(entries))
	}
}

func TestVITS_PitchShiftFailureContinues(t *testing.T) {
	env := newTestEnv(t, "vits")
	voiceRef := filepath.Join(env.cfg.Paths.VoicesDir, "Clone.wav")
	env.cfg.Session.Voice = voiceRef
	env.classifier.genders[voiceRef] = voice.Female
	env.classifier.other = voice.Male
	env.shifter.err = errors.New("sox not found")
	a := env.adapter(t)
	ctx := context.Background()
	a.EnsureLoaded(ctx)

	if _, err := a.SynthesizeFragment(ctx, "hello", voiceRef, runtime.Params{}); err != nil {
		t.Fatalf("SynthesizeFragment should continue without pitch shift: %v", err)
	}
	if env.shifter.semitones[0] != 4 {
		t.Errorf("semitones = %d, want +4", env.shifter.semitones[0])
	}
	if len(env.loader.vc.calls) != 1 {
		t.Error("voice conversion not run")
	}
}

func TestSemitoneOffset(t *testing.T) {
	tests := []struct {
		clone, builtin voice.Gender
		want           int
	}{
		{voice.Male, voice.Male, 0},
		{voice.Female, voice.Female, 0},
		{voice.Male, voice.Female, -4},
		{voice.Female, voice.Male, 4},
		{voice.Undetermined, voice.Male, 4},
		{voice.Male, voice.Undetermined, -4},
		{voice.Undetermined, voice.Undetermined, 0},
	}
	for _, tt := range tests {
		if got := semitoneOffset(tt.clone, tt.builtin); got != tt.want {
			t.Errorf("semitoneOffset(%s, %s) = %d, want %d", tt.clone, tt.builtin, got, tt.want)
		}
	}
}

func TestFairseq_RepoAnd16kReference(t *testing.T) {
	env := newTestEnv(t, "fairseq")
	env.cfg.Session.Language = "deu"
	voiceRef := filepath.Join(env.cfg.Paths.VoicesDir, "deu", "Anna_24000.wav")
	env.cfg.Session.Voice = voiceRef
	a := env.adapter(t)
	ctx := context.Background()

	if err := a.EnsureLoaded(ctx); err != nil {
		t.Fatal(err)
	}
	if env.loader.apiRepos[0] != "tts_models/deu/fairseq/vits" {
		t.Errorf("repo = %s", env.loader.apiRepos[0])
	}
	if !a.RewritesPeriods() {
		t.Error("fairseq should rewrite periods")
	}
	if _, err := a.SynthesizeFragment(ctx, "Hallo", voiceRef, runtime.Params{}); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(env.cfg.Paths.VoicesDir, "deu", "Anna_16000.wav")
	if got := env.loader.vc.calls[0][1]; got != want {
		t.Errorf("conversion target = %s, want %s", got, want)
	}
}

func TestFairseq_LanguagesDoNotShareCachedModel(t *testing.T) {
	env := newTestEnv(t, "fairseq")
	ctx := context.Background()
	env.cfg.Session.Language = "deu"
	deu := env.adapter(t)
	if err := deu.EnsureLoaded(ctx); err != nil {
		t.Fatal(err)
	}
	env.cfg.Session.Language = "fra"
	fra := env.adapter(t)
	if err := fra.EnsureLoaded(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"tts_models/deu/fairseq/vits", "tts_models/fra/fairseq/vits"}
	if len(env.loader.apiRepos) != 2 || env.loader.apiRepos[0] != want[0] || env.loader.apiRepos[1] != want[1] {
		t.Errorf("loaded repos = %v, want %v", env.loader.apiRepos, want)
	}
}
