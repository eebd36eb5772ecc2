package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const (
	deepgramIdleWindow = 400 * time.Millisecond
	deepgramMaxWait    = 12 * time.Second
)

// DeepgramClient synthesizes over Deepgram's speak websocket and returns
// the linear16 stream as a WAV clip.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	log        *slog.Logger
}

func NewDeepgramClient(apiKey, model string, logger *slog.Logger) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepgramClient{apiKey: apiKey, model: model, sampleRate: 24000, log: logger.With("component", "deepgram")}
}

// Synthesize ignores req.VoiceName; Deepgram voices are models.
func (d *DeepgramClient) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	if d.apiKey == "" {
		return Audio{}, fmt.Errorf("deepgram: %w", ErrMissingAPIKey)
	}

	cb := newPCMCollector()
	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return Audio{}, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return Audio{}, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(req.Text); err != nil {
		return Audio{}, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.Warn("flush failed", "error", err)
	}

	if err := cb.wait(ctx, deepgramIdleWindow, deepgramMaxWait); err != nil {
		return Audio{}, err
	}
	pcm := cb.bytes()
	if len(pcm) == 0 {
		return Audio{}, fmt.Errorf("deepgram: no audio received")
	}
	return Audio{Content: wavPCM16(pcm, d.sampleRate), ContentType: ContentTypeWAV}, nil
}

// pcmCollector buffers binary frames and signals the end of the stream
// once the server flushes or goes quiet.
type pcmCollector struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	last    time.Time
	flushed bool
	err     error
}

func newPCMCollector() *pcmCollector { return &pcmCollector{} }

func (p *pcmCollector) Open(*msginterfaces.OpenResponse) error         { return nil }
func (p *pcmCollector) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (p *pcmCollector) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (p *pcmCollector) Close(*msginterfaces.CloseResponse) error       { return nil }
func (p *pcmCollector) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (p *pcmCollector) UnhandledEvent([]byte) error                    { return nil }

func (p *pcmCollector) Flush(*msginterfaces.FlushedResponse) error {
	p.mu.Lock()
	p.flushed = true
	p.mu.Unlock()
	return nil
}

func (p *pcmCollector) Error(er *msginterfaces.ErrorResponse) error {
	p.mu.Lock()
	if er != nil {
		p.err = fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg)
	}
	p.mu.Unlock()
	return nil
}

func (p *pcmCollector) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	p.mu.Lock()
	p.buf.Write(data)
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *pcmCollector) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

// wait returns once audio went idle for idle after the first frame, the
// server flushed, or maxWait elapsed.
func (p *pcmCollector) wait(ctx context.Context, idle, maxWait time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(maxWait)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		p.mu.Lock()
		err, flushed, last := p.err, p.flushed, p.last
		p.mu.Unlock()
		switch {
		case err != nil:
			return err
		case flushed:
			return nil
		case !last.IsZero() && time.Since(last) > idle:
			return nil
		case time.Now().After(deadline):
			return nil
		}
	}
}
