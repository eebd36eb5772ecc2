package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
)

func testOptions() options {
	return options{language: "en-US", timeout: time.Second}
}

func TestRunChat_LocalMatcher(t *testing.T) {
	in := strings.NewReader("what is my balance\n/3\n/9\n\n/actions\n/new\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), intent.Fallback{}, testOptions(), in, &out))

	got := out.String()
	assert.Equal(t, 2, strings.Count(got, conversation.GreetingText))
	assert.Contains(t, got, "checking account balance")
	assert.Contains(t, got, "Monday to Friday")
	assert.Contains(t, got, `unknown command "/9"`)
	assert.Contains(t, got, "/6  Speak to Agent")
}

func TestRunChat_ResolverFailureIsMasked(t *testing.T) {
	failing := intent.ResolverFunc(func(context.Context, intent.Query) (intent.Result, error) {
		return intent.Result{}, &intent.StatusError{StatusCode: http.StatusInternalServerError}
	})
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), failing, testOptions(), strings.NewReader("hello\n"), &out))
	assert.Contains(t, out.String(), conversation.ApologyText)
	assert.NotContains(t, out.String(), "HTTP error")
}

func TestRunChat_AgentSwitchForwardsAgent(t *testing.T) {
	var agents []string
	r := intent.ResolverFunc(func(_ context.Context, q intent.Query) (intent.Result, error) {
		agents = append(agents, q.AgentID)
		return intent.Match(q.Text), nil
	})
	o := testOptions()
	o.agent = "retail"
	in := strings.NewReader("thanks\n/agent\n/agent cards\nthanks\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), r, o, in, &out))
	assert.Equal(t, []string{"retail", "cards"}, agents)
	assert.Contains(t, out.String(), "usage: /agent <id>")
}

func TestNewResolver(t *testing.T) {
	assert.IsType(t, intent.Fallback{}, newResolver(""))
	assert.IsType(t, &intent.ProxyClient{}, newResolver("http://localhost:3001/api"))
}

func TestAgentsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dialogflow/agents", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agents":[{"key":"retail","id":"bank-retail","name":"Retail","description":"Branch support"}],"defaultAgent":"retail"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"agents", "--server", srv.URL + "/api"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		opts = options{}
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "* retail")
	assert.Contains(t, out.String(), "Branch support")
}

func TestPrintAgents_Empty(t *testing.T) {
	var out bytes.Buffer
	printAgents(&out, intent.Catalog{})
	assert.Equal(t, "no agents configured\n", out.String())
}
