package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iabetor/narrator/internal/document"
	"github.com/iabetor/narrator/internal/subtitle"
)

type memProgress struct {
	done   map[string]float64
	failed map[string]error
}

func newMemProgress() *memProgress {
	return &memProgress{done: map[string]float64{}, failed: map[string]error{}}
}

func (p *memProgress) IsDone(name string) (bool, error) {
	_, ok := p.done[name]
	return ok, nil
}

func (p *memProgress) MarkDone(name string, seconds float64) error {
	p.done[name] = seconds
	delete(p.failed, name)
	return nil
}

func (p *memProgress) MarkFailed(name string, cause error) error {
	p.failed[name] = cause
	return nil
}

type cue struct {
	start float64
	text  string
}

func readCues(t *testing.T, vtt string) []cue {
	t.Helper()
	var cues []cue
	sc := bufio.NewScanner(strings.NewReader(vtt))
	for sc.Scan() {
		line := sc.Text()
		i := strings.Index(line, " --> ")
		if i < 0 {
			continue
		}
		start, err := subtitle.ParseTimestamp(line[:i])
		if err != nil {
			t.Fatalf("bad cue line %q: %v", line, err)
		}
		sc.Scan()
		cues = append(cues, cue{start: start, text: sc.Text()})
	}
	return cues
}

func TestConvertDocument_StopsAtFirstFailureAndResumesInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	progress := newMemProgress()

	sentences := []document.Sentence{
		{Number: 1, Chunks: []string{"one"}},
		{Number: 2, Chunks: []string{"fail two"}},
		{Number: 3, Chunks: []string{"three"}},
	}
	rep, err := env.orch.ConvertDocument(ctx, progress, sentences)
	if err == nil {
		t.Fatal("expected the failing sentence to stop the run")
	}
	if rep.Failed != "2" || rep.Converted != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, ok := progress.failed["2"]; !ok {
		t.Error("sentence 2 should be marked failed")
	}
	for _, text := range env.loader.synth.texts {
		if strings.Contains(text, "three") {
			t.Fatal("sentence 3 must not be converted after a failure")
		}
	}

	// 修正后重新运行：新的编排器从已有字幕续写
	sentences[1].Chunks = []string{"two"}
	resumed, err := New(env.svc)
	if err != nil {
		t.Fatal(err)
	}
	defer resumed.Close()
	rep, err = resumed.ConvertDocument(ctx, progress, sentences)
	if err != nil {
		t.Fatalf("ConvertDocument: %v", err)
	}
	if rep.Skipped != 1 || rep.Converted != 2 || rep.Failed != "" {
		t.Errorf("resumed report = %+v", rep)
	}

	cues := readCues(t, env.vtt(t))
	want := []string{"one", "two", "three"}
	if len(cues) != len(want) {
		t.Fatalf("got %d cues, want %d:\n%s", len(cues), len(want), env.vtt(t))
	}
	for i, c := range cues {
		if c.text != want[i] {
			t.Errorf("cue %d = %q, want %q", i+1, c.text, want[i])
		}
		if i > 0 && c.start <= cues[i-1].start {
			t.Errorf("cue %d starts at %.3f, not after %.3f", i+1, c.start, cues[i-1].start)
		}
	}
}

func TestConvertDocument_ReconvertsDoneChunksAfterGap(t *testing.T) {
	env := newTestEnv(t)
	progress := newMemProgress()
	progress.MarkDone("1", 1)
	progress.MarkDone("3", 1)

	sentences := []document.Sentence{
		{Number: 1, Chunks: []string{"one"}},
		{Number: 2, Chunks: []string{"two"}},
		{Number: 3, Chunks: []string{"three"}},
	}
	rep, err := env.orch.ConvertDocument(context.Background(), progress, sentences)
	if err != nil {
		t.Fatalf("ConvertDocument: %v", err)
	}
	if rep.Skipped != 1 || rep.Converted != 2 {
		t.Errorf("report = %+v", rep)
	}
	cues := readCues(t, env.vtt(t))
	if len(cues) != 2 || cues[0].text != "two" || cues[1].text != "three" {
		t.Errorf("cues = %+v", cues)
	}
}

func TestConvertDocument_CanceledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	progress := newMemProgress()

	rep, err := env.orch.ConvertDocument(ctx, progress, []document.Sentence{{Number: 1, Chunks: []string{"one"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rep.Converted != 0 || len(progress.failed) != 0 {
		t.Errorf("nothing should be recorded, report = %+v", rep)
	}
}
