package transform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

func rec(row int, fields ...string) model.InputRecord {
	r := model.InputRecord{Row: row, ID: "P-secret", Active: "True"}
	for i := 0; i+1 < len(fields); i += 2 {
		r.Fields = append(r.Fields, model.Field{Name: fields[i], Value: fields[i+1]})
	}
	return r
}

func TestRender(t *testing.T) {
	records := []model.InputRecord{
		rec(0, "name", "Stuhl", "description", "", "category", "Möbel"),
		rec(1, "name", "Tisch", "notes", "internal", "location", "3,4"),
	}

	out, err := Render(records, RenderOptions{Exclude: []string{"notes"}})
	require.NoError(t, err)
	assert.Equal(t, "name: Stuhl, category: Möbel\nname: Tisch, location: 3,4", out)
	assert.NotContains(t, out, "P-secret")
	assert.NotContains(t, out, "True")
}

func TestRender_RequiredColumn(t *testing.T) {
	records := []model.InputRecord{
		rec(7, "name", "Stuhl"),
		rec(8, "name", ""),
	}
	_, err := Render(records, RenderOptions{Required: []string{"name"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedRow))
	assert.True(t, errors.IsRetryable(err))

	var mErr *errors.MigrateError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, 8, mErr.Context["row"])
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t, "Transform the following 2 rows:\na\nb", UserPrompt(2, "a\nb"))
}

func TestEchoClient(t *testing.T) {
	c := NewEchoClient(DefaultEchoColumns(), nil)
	out, err := c.Transform(context.Background(), []model.InputRecord{
		rec(0, "name", "Stuhl", "location", "12; -4", "color", "red"),
		rec(1, "description", "leer"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "Stuhl", *out[0].Product.Name)
	assert.Nil(t, out[0].Product.Description)
	assert.Equal(t, []int{12, -4}, out[0].Product.Location)
	assert.Equal(t, []string{"color"}, out[0].Log.LostData)
	assert.True(t, out[0].Log.NeedsReview)

	assert.Nil(t, out[1].Product.Name)
	assert.Equal(t, "leer", *out[1].Product.Description)
	assert.Equal(t, []int{}, out[1].Product.Location)
	assert.False(t, out[1].Log.NeedsReview)
}

func TestEchoClient_RequiredColumns(t *testing.T) {
	c := NewEchoClient(DefaultEchoColumns(), []string{"name"})

	out, err := c.Transform(context.Background(), []model.InputRecord{rec(0, "name", "Stuhl")})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = c.Transform(context.Background(), []model.InputRecord{
		rec(4, "name", "Stuhl"),
		rec(5, "description", "no name"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedRow))

	var mErr *errors.MigrateError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, 5, mErr.Context["row"])
}

func TestFunc(t *testing.T) {
	var c Client = Func(func(_ context.Context, r []model.InputRecord) ([]model.TransformedRecord, error) {
		return make([]model.TransformedRecord, len(r)), nil
	})
	out, err := c.Transform(context.Background(), []model.InputRecord{{}, {}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func completion(t *testing.T, items int) string {
	t.Helper()
	list := model.ProductList{Items: make([]model.TransformedRecord, items)}
	for i := range list.Items {
		name := "item"
		list.Items[i].Product.Name = &name
		list.Items[i].Product.Location = []int{i}
	}
	content, err := json.Marshal(list)
	require.NoError(t, err)

	resp := map[string]interface{}{
		"choices": []map[string]interface{}{{
			"message":       map[string]interface{}{"role": "assistant", "content": string(content)},
			"finish_reason": "stop",
		}},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func TestOpenAIClient_Transform(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, completion(t, 2))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Temperature: 0.2}, zerolog.Nop())
	require.NoError(t, err)

	out, err := c.Transform(context.Background(), []model.InputRecord{
		rec(0, "name", "Stuhl"),
		rec(1, "name", "Tisch"),
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []int{1}, out[1].Product.Location)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 0.2, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "Transform the following 2 rows:\nname: Stuhl\nname: Tisch", got.Messages[1].Content)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.True(t, got.ResponseFormat.JSONSchema.Strict)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      errors.Code
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, errors.CodeTransformFailed, true},
		{"server error", http.StatusBadGateway, ``, errors.CodeTransformFailed, true},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, errors.CodeRequestRejected, false},
		{"not json", http.StatusOK, `<html>`, errors.CodeBadResponse, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, errors.CodeBadResponse, true},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"refusal":"no"}}]}`, errors.CodeBadResponse, true},
		{"truncated", http.StatusOK, `{"choices":[{"message":{"content":"{\"items\":["},"finish_reason":"length"}]}`, errors.CodeBadResponse, true},
		{"bad content", http.StatusOK, `{"choices":[{"message":{"content":"items"}}]}`, errors.CodeBadResponse, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
			require.NoError(t, err)

			_, err = c.Transform(context.Background(), []model.InputRecord{rec(0, "name", "x")})
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestOpenAIClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Transform(context.Background(), []model.InputRecord{rec(0, "name", "x")})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
