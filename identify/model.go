package identify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelIdentifier calls a remote model server that answers
// POST /identify and POST /identify-image with a Response.
type ModelIdentifier struct {
	baseURL string
	client  *http.Client
}

func NewModelIdentifier(baseURL string, client *http.Client) *ModelIdentifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ModelIdentifier{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// GetName returns the name of this identifier
func (m *ModelIdentifier) GetName() string {
	return BackendModel
}

func (m *ModelIdentifier) IdentifyText(ctx context.Context, text string) (Response, error) {
	return m.post(ctx, "/identify", map[string]any{"text": text})
}

func (m *ModelIdentifier) IdentifyImage(ctx context.Context, data []byte, mime string) (Response, error) {
	return m.post(ctx, "/identify-image", map[string]any{
		"image":     base64.StdEncoding.EncodeToString(data),
		"mime_type": mime,
	})
}

func (m *ModelIdentifier) post(ctx context.Context, path string, body map[string]any) (Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := m.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusUnsupportedMediaType {
		return Response{}, ErrUnsupported
	}
	if response.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return Response{}, fmt.Errorf("model server %s: status %d: %s", path, response.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Response
	if err := json.NewDecoder(response.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode model server response: %w", err)
	}
	for i := range out.Candidates {
		out.Candidates[i].Confidence = clamp01(out.Candidates[i].Confidence)
		if out.Candidates[i].ID == "" {
			out.Candidates[i].ID = Slug(out.Candidates[i].Name)
		}
	}
	return out, nil
}

// Close implements the Identifier interface
func (m *ModelIdentifier) Close() error {
	return nil
}
