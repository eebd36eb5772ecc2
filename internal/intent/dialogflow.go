package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const dialogflowScope = "https://www.googleapis.com/auth/cloud-platform"

// DialogflowClient calls the Dialogflow ES v2 REST detectIntent method.
type DialogflowClient struct {
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
	Catalog     Catalog
	BaseURL     string
}

type dfTextInput struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

type dfQueryInput struct {
	Text dfTextInput `json:"text"`
}

type dfDetectIntentRequest struct {
	QueryInput dfQueryInput `json:"queryInput"`
}

type dfIntent struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type dfContext struct {
	Name          string         `json:"name"`
	LifespanCount int            `json:"lifespanCount"`
	Parameters    map[string]any `json:"parameters"`
}

type dfQueryResult struct {
	QueryText                 string         `json:"queryText"`
	Parameters                map[string]any `json:"parameters"`
	FulfillmentText           string         `json:"fulfillmentText"`
	Intent                    *dfIntent      `json:"intent"`
	IntentDetectionConfidence float64        `json:"intentDetectionConfidence"`
	OutputContexts            []dfContext    `json:"outputContexts"`
}

type dfDetectIntentResponse struct {
	ResponseID  string        `json:"responseId"`
	QueryResult dfQueryResult `json:"queryResult"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewDialogflowClient builds a client authenticated with Application
// Default Credentials (GOOGLE_APPLICATION_CREDENTIALS, workload identity,
// or gcloud auth).
func NewDialogflowClient(ctx context.Context, catalog Catalog) (*DialogflowClient, error) {
	ts, err := google.DefaultTokenSource(ctx, dialogflowScope)
	if err != nil {
		return nil, fmt.Errorf("dialogflow: create token source: %w", err)
	}
	return &DialogflowClient{
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		TokenSource: ts,
		Catalog:     catalog,
		BaseURL:     "https://dialogflow.googleapis.com/v2",
	}, nil
}

func (c *DialogflowClient) DetectIntent(ctx context.Context, q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	project := c.Catalog.Project(q.AgentID)
	if project == "" || c.TokenSource == nil {
		return Result{}, ErrNotConfigured
	}
	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	lang := q.LanguageCode
	if lang == "" {
		lang = DefaultLanguageCode
	}

	endpoint := fmt.Sprintf("%s/projects/%s/agent/sessions/%s:detectIntent",
		strings.TrimRight(c.BaseURL, "/"), url.PathEscape(project), url.PathEscape(sessionID))
	reqBody, _ := json.Marshal(dfDetectIntentRequest{QueryInput: dfQueryInput{Text: dfTextInput{Text: text, LanguageCode: lang}}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, err
	}
	token, err := c.TokenSource.Token()
	if err != nil {
		return Result{}, fmt.Errorf("dialogflow: get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("dialogflow: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Result{}, upstreamError("dialogflow", resp.StatusCode, b)
	}
	var dr dfDetectIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return Result{}, fmt.Errorf("dialogflow: decode response: %w", err)
	}
	return dr.QueryResult.toResult(), nil
}

func (r dfQueryResult) toResult() Result {
	name := "Unknown"
	if r.Intent != nil && r.Intent.DisplayName != "" {
		name = r.Intent.DisplayName
	}
	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	contexts := make([]OutputContext, 0, len(r.OutputContexts))
	for _, oc := range r.OutputContexts {
		p := oc.Parameters
		if p == nil {
			p = map[string]any{}
		}
		contexts = append(contexts, OutputContext{Name: oc.Name, LifespanCount: oc.LifespanCount, Parameters: p})
	}
	return Result{
		QueryText:       r.QueryText,
		FulfillmentText: r.FulfillmentText,
		Intent:          Intent{DisplayName: name, Confidence: r.IntentDetectionConfidence},
		Parameters:      params,
		OutputContexts:  contexts,
	}
}

// upstreamError builds a StatusError from a Google API error body, falling
// back to the raw body when it is not the standard envelope.
func upstreamError(service string, status int, body []byte) *StatusError {
	var ge googleErrorResponse
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return &StatusError{StatusCode: status, Message: fmt.Sprintf("%s: %s", service, ge.Error.Message)}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return &StatusError{StatusCode: status}
	}
	return &StatusError{StatusCode: status, Message: fmt.Sprintf("%s error: status=%d body=%s", service, status, msg)}
}
