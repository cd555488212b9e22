package ai

import (
	"Scripter/core"
	"Scripter/lib/sl"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const maxLoggedBody = 200

// ScriptGenerator posts form values to the script generation service.
type ScriptGenerator struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

func NewScriptGenerator(conf *core.Config, log *slog.Logger) *ScriptGenerator {
	return &ScriptGenerator{
		endpoint:   conf.Endpoint(),
		httpClient: &http.Client{},
		log:        log.With(sl.Module("script-generator")),
	}
}

func (g *ScriptGenerator) Endpoint() string {
	return g.endpoint
}

// GenerateScript sends one request and waits for the answer. There is no
// timeout; cancel ctx to abort. A status other than 200 yields *core.StatusError.
func (g *ScriptGenerator) GenerateScript(ctx context.Context, req core.ScriptRequest) (string, error) {
	jsonBytes, err := json.Marshal(NewRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("getting response: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			g.log.Error("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	g.log.With(
		slog.Int("status", resp.StatusCode),
		slog.Int("size", len(body)),
	).Debug("response received")

	if resp.StatusCode != http.StatusOK {
		return "", &core.StatusError{Code: resp.StatusCode, Body: truncate(string(body), maxLoggedBody)}
	}

	var generated GenerateResponse
	if err := json.Unmarshal(body, &generated); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if generated.Script == nil {
		return "", fmt.Errorf("decoding response: missing script")
	}
	return *generated.Script, nil
}

func truncate(text string, limit int) string {
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
