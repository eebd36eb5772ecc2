package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestDialogflow(t *testing.T, handler http.HandlerFunc) *DialogflowClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &DialogflowClient{
		HTTPClient: &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		})},
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
		Catalog: Catalog{
			Agents:       []Agent{{Key: "retail", ID: "bank-retail"}, {Key: "cards", ID: "bank-cards"}},
			DefaultAgent: "retail",
		},
		BaseURL: "https://dialogflow.googleapis.com/v2",
	}
}

func TestDialogflow_DetectIntent(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody dfDetectIntentRequest
	c := newTestDialogflow(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"responseId": "r1",
			"queryResult": {
				"queryText": "card lost",
				"fulfillmentText": "Blocked.",
				"parameters": {"card": "debit"},
				"intent": {"name": "projects/x/agent/intents/1", "displayName": "card.lost"},
				"intentDetectionConfidence": 0.87,
				"outputContexts": [{"name": "ctx/a", "lifespanCount": 2}]
			}
		}`))
	})

	res, err := c.DetectIntent(context.Background(), Query{SessionID: "s-1", Text: " card lost ", AgentID: "cards"})
	require.NoError(t, err)
	assert.Equal(t, "/v2/projects/bank-cards/agent/sessions/s-1:detectIntent", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "card lost", gotBody.QueryInput.Text.Text)
	assert.Equal(t, DefaultLanguageCode, gotBody.QueryInput.Text.LanguageCode)

	assert.Equal(t, "card.lost", res.Intent.DisplayName)
	assert.InDelta(t, 0.87, res.Intent.Confidence, 1e-9)
	assert.Equal(t, "Blocked.", res.FulfillmentText)
	assert.Equal(t, "debit", res.Parameters["card"])
	require.Len(t, res.OutputContexts, 1)
	assert.Equal(t, 2, res.OutputContexts[0].LifespanCount)
	assert.NotNil(t, res.OutputContexts[0].Parameters)
}

func TestDialogflow_UnknownIntentAndDefaultAgent(t *testing.T) {
	var gotPath string
	c := newTestDialogflow(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"queryResult": {"queryText": "hm"}}`))
	})
	res, err := c.DetectIntent(context.Background(), Query{SessionID: "s", Text: "hm", AgentID: "missing"})
	require.NoError(t, err)
	assert.Contains(t, gotPath, "/projects/bank-retail/")
	assert.Equal(t, "Unknown", res.Intent.DisplayName)
	assert.Equal(t, 0.0, res.Intent.Confidence)
}

func TestDialogflow_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{"google_error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`))
		}, http.StatusForbidden},
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }, 500},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestDialogflow(t, tc.handler)
			_, err := c.DetectIntent(context.Background(), Query{Text: "hi"})
			require.Error(t, err)
			var se *StatusError
			if tc.status == 0 {
				assert.False(t, errors.As(err, &se))
				return
			}
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.status, se.HTTPStatusCode())
		})
	}
}

func TestDialogflow_Preconditions(t *testing.T) {
	c := &DialogflowClient{}
	_, err := c.DetectIntent(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = c.DetectIntent(context.Background(), Query{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(`[{"key":"retail","id":"p1","name":"Retail"},{"id":"p2"}]`, "", "")
	require.NoError(t, err)
	assert.Equal(t, "retail", c.DefaultAgent)
	assert.Equal(t, "p2", c.Agents[1].Key)
	assert.Equal(t, "p2", c.Project("p2"))
	assert.Equal(t, "p1", c.Project(""))

	c, err = ParseCatalog("", "", "proj")
	require.NoError(t, err)
	assert.Equal(t, "proj", c.Project("anything"))

	c, err = ParseCatalog("", "", "")
	require.NoError(t, err)
	assert.Empty(t, c.Project(""))

	_, err = ParseCatalog(`[{"key":"x"}]`, "", "")
	assert.Error(t, err)
	_, err = ParseCatalog(`{`, "", "")
	assert.Error(t, err)
}
