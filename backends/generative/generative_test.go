package generative

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 16, 16))
}

// messagesServer answers every Messages API call with one text block.
func messagesServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type   string `json:"type"`
					Source *struct {
						MediaType string `json:"media_type"`
					} `json:"source"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
		if assert.Len(t, body.Messages, 1) && assert.Len(t, body.Messages[0].Content, 2) {
			assert.Equal(t, "text", body.Messages[0].Content[0].Type)
			assert.Equal(t, "image", body.Messages[0].Content[1].Type)
			assert.Equal(t, "image/jpeg", body.Messages[0].Content[1].Source.MediaType)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
			return
		}
		payload, _ := json.Marshal(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         DefaultModel,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestBackend(srv *httptest.Server) *Backend {
	cfg := DefaultConfig()
	cfg.APIURL = srv.URL
	cfg.APIKey = "test-key"
	return New(cfg, srv.Client())
}

func TestProcessParsesAnswer(t *testing.T) {
	answer := "Objeto: silla, coordenadas (12, 30, 140, 260), confianza 0.8"
	b := newTestBackend(messagesServer(t, http.StatusOK, answer))

	require.NoError(t, b.Load(context.Background()))
	res, err := b.Process(context.Background(), testImage())
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	require.Equal(t, 1, res.Count)
	assert.Equal(t, detection.BackendRemoteGenerative, res.Backend)
	assert.Equal(t, "silla", res.Detections[0].Class)
	assert.Equal(t, detection.Box{X1: 12, Y1: 30, X2: 140, Y2: 260}, res.Detections[0].Box)
	assert.Equal(t, answer, res.Metadata["raw_response"])
}

func TestProcessWithoutCoordinatesIsEmpty(t *testing.T) {
	b := newTestBackend(messagesServer(t, http.StatusOK, "There is a plant in the corner."))

	res, err := b.Process(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.Detections)
}

func TestProcessAPIFailure(t *testing.T) {
	b := newTestBackend(messagesServer(t, http.StatusInternalServerError, ""))

	_, err := b.Process(context.Background(), testImage())
	var pf *detection.ProcessingFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, detection.BackendRemoteGenerative, pf.Backend)
}

func TestProcessWithoutKey(t *testing.T) {
	b := New(Config{}, nil)
	require.NoError(t, b.Load(context.Background()))

	_, err := b.Process(context.Background(), testImage())
	var ce *detection.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, detection.BackendRemoteGenerative, ce.Backend)

	info := b.Describe()
	assert.False(t, info.Configured)
	assert.Equal(t, DefaultAPIURL, info.Endpoint)
	assert.Equal(t, DefaultModel, info.Model)
}
