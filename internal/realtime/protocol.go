package realtime

import (
	"github.com/arsaha28/ccp/internal/conversation"
)

// Client event types.
const (
	evStartCapture    = "start_capture"
	evStopCapture     = "stop_capture"
	evTranscript      = "transcript"
	evCaptureError    = "capture_error"
	evCaptureEnd      = "capture_end"
	evText            = "text"
	evQuickAction     = "quick_action"
	evNewConversation = "new_conversation"
	evSelectAgent     = "select_agent"
	evPlaybackEnded   = "playback_ended"
)

// Server event types.
const (
	evSession      = "session"
	evState        = "state"
	evMessage      = "message"
	evPartial      = "partial"
	evError        = "error"
	evSpeak        = "speak"
	evCancelSpeech = "cancel_speech"
)

type clientEvent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Final       bool   `json:"final,omitempty"`
	Error       string `json:"error,omitempty"`
	ID          string `json:"id,omitempty"`
	AgentID     string `json:"agentId,omitempty"`
	UtteranceID string `json:"utteranceId,omitempty"`
}

type serverEvent struct {
	Type         string                     `json:"type"`
	SessionID    string                     `json:"sessionId,omitempty"`
	AgentID      string                     `json:"agentId,omitempty"`
	QuickActions []conversation.QuickAction `json:"quickActions,omitempty"`
	State        string                     `json:"state,omitempty"`
	Message      *conversation.Message      `json:"message,omitempty"`
	Text         string                     `json:"text,omitempty"`
	Error        string                     `json:"error,omitempty"`
	UtteranceID  string                     `json:"utteranceId,omitempty"`
	// AudioContent is base64 in JSON. Empty means the browser speaks Text itself.
	AudioContent []byte `json:"audioContent,omitempty"`
	ContentType  string `json:"contentType,omitempty"`
}
