package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/tts"
)

func TestResolver_CountsByStatus(t *testing.T) {
	m := New()
	ok := m.Resolver("fallback", intent.Fallback{})
	_, err := ok.DetectIntent(context.Background(), intent.Query{Text: "hello"})
	require.NoError(t, err)

	failing := m.Resolver("dialogflow", intent.ResolverFunc(func(ctx context.Context, q intent.Query) (intent.Result, error) {
		return intent.Result{}, errors.New("boom")
	}))
	_, _ = failing.DetectIntent(context.Background(), intent.Query{Text: "hello"})

	slow := m.Resolver("dialogflow", intent.ResolverFunc(func(ctx context.Context, q intent.Query) (intent.Result, error) {
		return intent.Result{}, context.DeadlineExceeded
	}))
	_, _ = slow.DetectIntent(context.Background(), intent.Query{Text: "hello"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolverRequests.WithLabelValues("fallback", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolverRequests.WithLabelValues("dialogflow", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolverRequests.WithLabelValues("dialogflow", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.resolverDuration))
}

type stubSynth struct{ err error }

func (s stubSynth) Synthesize(context.Context, tts.Request) (tts.Audio, error) {
	return tts.Audio{Content: []byte{1}}, s.err
}

func TestSynthesizer_Counts(t *testing.T) {
	m := New()
	_, err := m.Synthesizer("google", stubSynth{}).Synthesize(context.Background(), tts.Request{Text: "hi"})
	require.NoError(t, err)
	_, err = m.Synthesizer("google", stubSynth{err: errors.New("quota")}).Synthesize(context.Background(), tts.Request{Text: "hi"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.synthesisRequests.WithLabelValues("google", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.synthesisRequests.WithLabelValues("google", "error")))
}

func TestObserveTurnAndCapture(t *testing.T) {
	m := New()
	m.ObserveTurn(conversation.Turn{Source: conversation.SourceVoice}, nil)
	m.ObserveTurn(conversation.Turn{Source: conversation.SourceText, Failed: true}, errors.New("x"))
	m.ObserveCaptureError(errors.New("not-allowed"))
	done := m.ConversationStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("voice", "answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("text", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captureErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsActive))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.conversationsActive))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveCaptureError(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "voiceagent_capture_errors_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
