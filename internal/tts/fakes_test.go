package tts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/hub"
	"github.com/iabetor/narrator/internal/modelcache"
	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/voice"
)

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5
	}
	return out
}

type fakeSynth struct {
	mu   sync.Mutex
	rate int
	reqs []runtime.SpeechRequest
	out  []float32
}

func (s *fakeSynth) Synthesize(ctx context.Context, req runtime.SpeechRequest) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.out, nil
}
func (s *fakeSynth) SampleRate() int { return s.rate }
func (s *fakeSynth) Close() error    { return nil }

type fakeCheckpoint struct {
	latentRefs [][]string
	builtin    map[string]runtime.Latents
	builtinReq []string
	infer      []runtime.InferenceRequest
}

func (c *fakeCheckpoint) ConditioningLatents(ctx context.Context, refs []string) (runtime.Latents, error) {
	c.latentRefs = append(c.latentRefs, refs)
	return runtime.Latents{GPTCond: []float32{1}, Speaker: []float32{2}}, nil
}

func (c *fakeCheckpoint) BuiltinLatents(ctx context.Context, name string) (runtime.Latents, bool, error) {
	c.builtinReq = append(c.builtinReq, name)
	l, ok := c.builtin[name]
	return l, ok, nil
}

func (c *fakeCheckpoint) Inference(ctx context.Context, req runtime.InferenceRequest) ([]float32, error) {
	c.infer = append(c.infer, req)
	return tone(240), nil
}
func (c *fakeCheckpoint) SampleRate() int { return 24000 }
func (c *fakeCheckpoint) Close() error    { return nil }

// trackedCheckpoint 记录每个检查点文件被关闭的次数。
type trackedCheckpoint struct {
	*fakeCheckpoint
	path   string
	closes map[string]int
}

func (c *trackedCheckpoint) Close() error {
	c.closes[c.path]++
	return nil
}

type fakeVC struct {
	calls [][2]string
}

func (v *fakeVC) Convert(ctx context.Context, source, target string) ([]float32, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, err
	}
	v.calls = append(v.calls, [2]string{source, target})
	return tone(160), nil
}
func (v *fakeVC) SampleRate() int { return 16000 }
func (v *fakeVC) Close() error    { return nil }

type fakeLoader struct {
	synth      *fakeSynth
	checkpoint *fakeCheckpoint
	vc         *fakeVC

	apiRepos  []string
	ckptFiles []runtime.CheckpointFiles
	vcModels  []string
	closes    map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		synth: &fakeSynth{rate: 22050, out: tone(100)},
		checkpoint: &fakeCheckpoint{builtin: map[string]runtime.Latents{
			"Claribel Dervla": {GPTCond: []float32{7}, Speaker: []float32{7}},
		}},
		vc:     &fakeVC{},
		closes: make(map[string]int),
	}
}

func (l *fakeLoader) LoadAPI(ctx context.Context, model, device string) (runtime.Synthesizer, error) {
	l.apiRepos = append(l.apiRepos, model)
	return l.synth, nil
}

func (l *fakeLoader) LoadCheckpoint(ctx context.Context, files runtime.CheckpointFiles, device string) (runtime.Checkpoint, error) {
	l.ckptFiles = append(l.ckptFiles, files)
	return &trackedCheckpoint{fakeCheckpoint: l.checkpoint, path: files.Model, closes: l.closes}, nil
}

func (l *fakeLoader) LoadVoiceConversion(ctx context.Context, model, device string) (runtime.VoiceConverter, error) {
	l.vcModels = append(l.vcModels, model)
	return l.vc, nil
}

// copyNormalizer 把输入原样复制到输出。
type copyNormalizer struct {
	calls []int
	err   error
}

func (n *copyNormalizer) Normalize(ctx context.Context, input, output string, sampleRate int) error {
	if n.err != nil {
		return n.err
	}
	n.calls = append(n.calls, sampleRate)
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

type recordShifter struct {
	semitones []int
	err       error
}

func (s *recordShifter) Shift(ctx context.Context, input, output string, semitones, sampleRate int) error {
	s.semitones = append(s.semitones, semitones)
	if s.err != nil {
		return s.err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

type mapClassifier struct {
	genders map[string]voice.Gender
	other   voice.Gender
	calls   int
}

func (c *mapClassifier) Classify(path string) (voice.Gender, error) {
	c.calls++
	if g, ok := c.genders[path]; ok {
		return g, nil
	}
	return c.other, nil
}

type testEnv struct {
	cfg        *config.Config
	loader     *fakeLoader
	cache      *modelcache.Cache
	normalizer *copyNormalizer
	shifter    *recordShifter
	classifier *mapClassifier
}

func newTestEnv(t *testing.T, engine string) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Session: config.SessionConfig{
			Engine:       engine,
			FineTuned:    "internal",
			Language:     "eng",
			LanguageISO1: "en",
			Device:       config.DeviceCPU,
		},
		Paths: config.PathsConfig{
			VoicesDir:      filepath.Join(root, "voices"),
			ModelsDir:      filepath.Join(root, "models"),
			CustomModelDir: filepath.Join(root, "custom"),
			SentencesDir:   filepath.Join(root, "out"),
		},
	}
	for _, name := range []string{"model.pth", "config.json", "vocab.json", xttsSpeakerFile} {
		writeFile(t, filepath.Join(cfg.Paths.ModelsDir, "coqui", "XTTS-v2", name), "x")
	}
	return &testEnv{
		cfg:        cfg,
		loader:     newFakeLoader(),
		cache:      modelcache.New(2),
		normalizer: &copyNormalizer{},
		shifter:    &recordShifter{},
		classifier: &mapClassifier{genders: map[string]voice.Gender{}, other: voice.Female},
	}
}

func (e *testEnv) adapter(t *testing.T) Adapter {
	t.Helper()
	a, err := New(e.cfg, Deps{
		Cache:      e.cache,
		Loader:     e.loader,
		Hub:        hub.NewLocalHub(e.cfg.Paths.ModelsDir),
		Catalog:    DefaultCatalog(),
		Normalizer: e.normalizer,
		Shifter:    e.shifter,
		Classifier: e.classifier,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
