package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepgram_Preconditions(t *testing.T) {
	_, err := NewDeepgramClient("", "", nil).Synthesize(context.Background(), Request{Text: "hello"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewDeepgramClient("key", "", nil).Synthesize(context.Background(), Request{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestPCMCollector_IdleEndsStream(t *testing.T) {
	p := newPCMCollector()
	require.NoError(t, p.Binary([]byte{1, 0}))
	require.NoError(t, p.Binary([]byte{2, 0}))

	start := time.Now()
	require.NoError(t, p.wait(context.Background(), 30*time.Millisecond, time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []byte{1, 0, 2, 0}, p.bytes())
}

func TestPCMCollector_FlushAndError(t *testing.T) {
	p := newPCMCollector()
	require.NoError(t, p.Flush(&msginterfaces.FlushedResponse{}))
	assert.NoError(t, p.wait(context.Background(), time.Second, time.Second))

	p = newPCMCollector()
	require.NoError(t, p.Error(&msginterfaces.ErrorResponse{ErrCode: "INVALID", ErrMsg: "bad model"}))
	err := p.wait(context.Background(), time.Second, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestPCMCollector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, newPCMCollector().wait(ctx, time.Second, time.Second), context.Canceled)
}

func TestWavPCM16_Header(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := wavPCM16(pcm, 24000)
	require.Len(t, wav, 48)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestDeepgram_LoggerCarriesComponent(t *testing.T) {
	var logs bytes.Buffer
	d := NewDeepgramClient("key", "", slog.New(slog.NewTextHandler(&logs, nil)))
	d.log.Warn("flush failed")
	assert.Contains(t, logs.String(), "component=deepgram")
	assert.Equal(t, "aura-2-thalia-en", d.model)

	assert.NotNil(t, NewDeepgramClient("key", "", nil).log)
}
