package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesNarratorMetrics(t *testing.T) {
	RecordModelLoad("xtts", true)
	RecordCacheFlush()
	SetCachedModels(1)
	RecordSentence("xtts", true, 3.5)
	RecordFragmentFailure("vits")
	RecordExternalFailure("sox")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"narrator_model_loads_total",
		"narrator_model_cache_flushes_total",
		"narrator_model_cache_entries",
		"narrator_sentences_total",
		"narrator_sentence_audio_seconds",
		"narrator_fragment_failures_total",
		"narrator_external_tool_failures_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
