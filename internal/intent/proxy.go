package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ProxyClient talks to the backend proxy's /dialogflow routes. It is the
// resolver used by clients that do not hold Google credentials themselves.
type ProxyClient struct {
	HTTPClient *http.Client
	// BaseURL is the API root, e.g. http://localhost:3001/api.
	BaseURL string
}

type errorBody struct {
	Error string `json:"error"`
}

func NewProxyClient(baseURL string) *ProxyClient {
	return &ProxyClient{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *ProxyClient) DetectIntent(ctx context.Context, q Query) (Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Result{}, ErrEmptyText
	}
	body, _ := json.Marshal(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/dialogflow/detect-intent", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var res Result
	if err := c.do(req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// DetectIntentAudio posts recorded audio. The proxy reserves this route, so
// callers should expect ErrNotImplemented.
func (c *ProxyClient) DetectIntentAudio(ctx context.Context, sessionID string, audio []byte) (Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("sessionId", sessionID)
	fw, err := mw.CreateFormFile("audio", "recording.webm")
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(audio); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/dialogflow/detect-intent-audio", &buf)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res Result
	if err := c.do(req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Agents fetches the agent catalog.
func (c *ProxyClient) Agents(ctx context.Context) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/dialogflow/agents", nil)
	if err != nil {
		return Catalog{}, err
	}
	var cat Catalog
	if err := c.do(req, &cat); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func (c *ProxyClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(b, &eb) == nil {
			se.Message = eb.Error
		}
		if resp.StatusCode == http.StatusNotImplemented {
			return fmt.Errorf("%w: %s", ErrNotImplemented, se.Error())
		}
		return se
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("proxy: decode response: %w", err)
	}
	return nil
}
