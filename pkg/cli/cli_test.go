package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apiv1 "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/api/v1"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = prev
		output = OutputText
	})
	return &buf
}

func TestClientSuccessAndAuth(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody apiv1.ExecRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		json.NewEncoder(w).Encode(types.ExecResult{Stdout: "hi\n", ExitCode: 0})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	result, err := c.Exec(context.Background(), "sess-1", apiv1.ExecRequest{Command: "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/v1/sessions/sess-1/exec", gotPath)
	assert.Equal(t, "echo hi", gotBody.Command)
}

func TestClientStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(apiv1.ErrorBody{Error: apiv1.ErrorDetail{
			Type:    "capacity_exceeded",
			Message: "session capacity exceeded (max 20)",
		}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").CreateSession(context.Background(), types.CreateSessionRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "capacity_exceeded", apiErr.Type)

	assert.Contains(t, FormatError(err), "All sandbox slots are in use")
	assert.NotEmpty(t, GetErrorSuggestions(err))
}

func TestClientUnstructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GetSession(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "http_error", apiErr.Type)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestSetOutputFormat(t *testing.T) {
	captureOutput(t)

	require.NoError(t, SetOutputFormat("JSON"))
	assert.True(t, IsStructuredOutput())
	require.NoError(t, SetOutputFormat("yml"))
	assert.Equal(t, OutputYAML, output)
	require.NoError(t, SetOutputFormat("text"))
	assert.False(t, IsStructuredOutput())
	assert.Error(t, SetOutputFormat("xml"))
}

func TestPrintStructured(t *testing.T) {
	buf := captureOutput(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session := types.Session{Id: "sess-1", Status: types.SessionStatusRunning, CreatedAt: created}

	assert.False(t, PrintStructured(session))
	assert.Empty(t, buf.String())

	require.NoError(t, SetOutputFormat(OutputJSON))
	assert.True(t, PrintStructured(session))
	var decoded types.Session
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "sess-1", decoded.Id)

	buf.Reset()
	require.NoError(t, SetOutputFormat(OutputYAML))
	assert.True(t, PrintStructured(session))
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.Equal(t, "sess-1", generic["id"])
	assert.Equal(t, "running", generic["status"])
}

func TestTableAndHelpers(t *testing.T) {
	buf := captureOutput(t)

	table := NewTable("ID", "STATUS")
	table.AddRow("sess-1", "running", "extra")
	table.AddRow("sess-long-identifier")
	table.Print()

	out := buf.String()
	assert.Contains(t, out, "sess-long-identifier")
	assert.NotContains(t, out, "extra")

	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "just now", FormatRelativeTime(time.Now()))
	assert.Equal(t, "2 hours ago", FormatRelativeTime(time.Now().Add(-2*time.Hour-time.Minute)))

	assert.Equal(t, "Attention", stageTitle(types.Stage{"title": "Attention"}))
	assert.Equal(t, "3", stageNumber(types.Stage{"number": float64(3)}, 0))
	assert.Equal(t, "2", stageNumber(types.Stage{}, 1))
}
