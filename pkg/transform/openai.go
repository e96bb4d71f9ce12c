package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// OpenAIConfig configures the chat-completions client.
type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	SystemPrompt string

	// Timeout bounds one request (0 = no limit).
	Timeout time.Duration

	Render RenderOptions
}

// DefaultOpenAIConfig returns the defaults used by the migrate command.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o",
		Temperature:  0.2,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// OpenAIClient calls a chat-completions endpoint with a strict JSON schema response format.
type OpenAIClient struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewOpenAIClient creates a client. The API key is required.
func NewOpenAIClient(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	return &OpenAIClient{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// productListSchema mirrors model.ProductList.
const productListSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["product", "log"],
        "properties": {
          "product": {
            "type": "object",
            "additionalProperties": false,
            "required": ["name", "description", "location", "category", "id", "is_active"],
            "properties": {
              "name": {"type": ["string", "null"]},
              "description": {"type": ["string", "null"]},
              "location": {"type": "array", "items": {"type": "integer"}},
              "category": {"type": ["string", "null"]},
              "id": {"type": "string"},
              "is_active": {"type": "boolean"}
            }
          },
          "log": {
            "type": "object",
            "additionalProperties": false,
            "required": ["needs_review", "lost_data", "modified_data", "other_data_modifications", "comment"],
            "properties": {
              "needs_review": {"type": "boolean"},
              "lost_data": {"type": "array", "items": {"type": "string"}},
              "modified_data": {"type": "array", "items": {"type": "string"}},
              "other_data_modifications": {"type": "array", "items": {"type": "string"}},
              "comment": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

// Transform implements Client. Server errors, rate limits and network failures are returned
// as retryable errors; other rejected requests are fatal.
func (c *OpenAIClient) Transform(ctx context.Context, records []model.InputRecord) ([]model.TransformedRecord, error) {
	data, err := Render(records, c.cfg.Render)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: UserPrompt(len(records), data)},
		},
		Temperature: c.cfg.Temperature,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   "ProductList",
				Strict: true,
				Schema: json.RawMessage(productListSchema),
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransformFailed, "encode request")
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRequestRejected, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransformFailed, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransformFailed, "read response")
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("rows", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("transform response")

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}
	return decodeResponse(raw)
}

func statusError(status int, raw []byte) error {
	msg := http.StatusText(status)
	var parsed chatResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	code := errors.CodeRequestRejected
	if status == http.StatusTooManyRequests || status >= 500 {
		code = errors.CodeTransformFailed
	}
	return errors.New(code, msg).WithContext("status", status)
}

func decodeResponse(raw []byte) ([]model.TransformedRecord, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, errors.CodeBadResponse, "decode response")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.CodeBadResponse, "response has no choices")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != nil && *choice.Message.Refusal != "" {
		return nil, errors.New(errors.CodeBadResponse, "model refused").
			WithContext("refusal", *choice.Message.Refusal)
	}
	if choice.FinishReason == "length" {
		return nil, errors.New(errors.CodeBadResponse, "response truncated")
	}
	if choice.Message.Content == nil {
		return nil, errors.New(errors.CodeBadResponse, "response has no content")
	}

	var list model.ProductList
	if err := json.Unmarshal([]byte(*choice.Message.Content), &list); err != nil {
		return nil, errors.Wrap(err, errors.CodeBadResponse, "decode product list")
	}
	return list.Items, nil
}
