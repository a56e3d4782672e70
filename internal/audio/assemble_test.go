package audio

import "testing"

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.5
	}
	return s
}

func TestAssemble_SumPlusSilences(t *testing.T) {
	const rate = 100
	a := NewAssembler(rate)
	silence := a.SilenceSamples()
	if silence != 200 {
		t.Fatalf("expected 2s silence = 200 samples, got %d", silence)
	}

	for n := 1; n <= 5; n++ {
		parts := make([]Part, n)
		sum := 0
		for i := range parts {
			parts[i] = Part{Text: "word", Samples: ones(10 + i)}
			sum += 10 + i
		}
		out := a.Assemble(parts)
		want := sum + (n-1)*silence
		if len(out) != want {
			t.Errorf("n=%d: got %d samples, want %d", n, len(out), want)
		}
	}
}

func TestAssemble_BlankTextBecomesSilence(t *testing.T) {
	a := NewAssembler(10)
	out := a.Assemble([]Part{
		{Text: "a", Samples: ones(3)},
		{Text: "   "},
		{Text: "b", Samples: ones(4)},
	})
	// a + sil + sil(空白) + b，末尾静音被去掉
	want := 3 + 20 + 20 + 4
	if len(out) != want {
		t.Fatalf("got %d samples, want %d", len(out), want)
	}
	if out[3] != 0 || out[3+40] != 0.5 {
		t.Errorf("unexpected layout around silence")
	}
}

func TestAssemble_FailedFragmentKeepsTimeline(t *testing.T) {
	a := NewAssembler(10)
	out := a.Assemble([]Part{
		{Text: "a", Samples: ones(3)},
		{Text: "failed"},
		{Text: "c", Samples: ones(3)},
	})
	want := 3 + 20 + 20 + 3
	if len(out) != want {
		t.Fatalf("got %d samples, want %d", len(out), want)
	}
}

func TestAssemble_TrailingBlankDropsOnlyOneSilence(t *testing.T) {
	a := NewAssembler(10)
	out := a.Assemble([]Part{
		{Text: "a", Samples: ones(3)},
		{Text: ""},
	})
	// a + sil + sil，只去掉最后一段
	if len(out) != 3+20 {
		t.Fatalf("got %d samples, want %d", len(out), 23)
	}
}

func TestAssemble_Empty(t *testing.T) {
	a := NewAssembler(10)
	if out := a.Assemble(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
	if out := a.Assemble([]Part{{Text: "x"}}); len(out) != 0 {
		t.Fatalf("single failed fragment should yield empty output, got %d", len(out))
	}
}

func TestAssembleAndTrim_PauseScenario(t *testing.T) {
	const rate = 1000
	a := NewAssembler(rate)
	hello := append(make([]float32, 50), ones(100)...)
	world := append(ones(80), make([]float32, 30)...)

	out := a.AssembleAndTrim([]Part{
		{Text: "Hello", Samples: hello},
		{Text: "world", Samples: world},
	}, true, 0.01)

	// 非静音区间为 hello[50:] + 2000 静音 + world[:80]，两侧各扩展 10 个样本
	want := 10 + 100 + 2000 + 80 + 10
	if len(out) != want {
		t.Fatalf("got %d samples, want %d", len(out), want)
	}
	if out[0] != 0 || out[10] != 0.5 || out[len(out)-1] != 0 {
		t.Errorf("unexpected trimmed edges")
	}
}

func TestAssembleAndTrim_NoTrim(t *testing.T) {
	a := NewAssembler(10)
	parts := []Part{{Text: "a", Samples: append(make([]float32, 5), ones(2)...)}}
	if out := a.AssembleAndTrim(parts, false, 0.5); len(out) != 7 {
		t.Fatalf("expected untrimmed length 7, got %d", len(out))
	}
}
