package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leofalp/tokenmeter/internal/config"
)

const (
	generateBody = `{"candidates":[{"content":{"parts":[{"text":"Hello there"}],"role":"model"},"finishReason":"STOP"}],` +
		`"usageMetadata":{"promptTokenCount":1200,"cachedContentTokenCount":200,"candidatesTokenCount":300,"totalTokenCount":1500}}`
	overloadedBody = `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`
)

// fakeGemini answers generateContent with generateBody, after failing the
// first `overloaded` calls with a 503, and streams a fixed SSE answer. The
// first `cutStreams` streams send one chunk and then an in-stream 503.
type fakeGemini struct {
	overloaded int
	cutStreams int

	streams atomic.Int32

	calls  atomic.Int32
	mu     sync.Mutex
	bodies []string
}

func (f *fakeGemini) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	call := int(f.calls.Add(1))
	body, _ := io.ReadAll(request.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	if call <= f.overloaded {
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte(overloadedBody))
		return
	}

	if strings.Contains(request.URL.Path, ":streamGenerateContent") {
		writer.Header().Set("Content-Type", "text/event-stream")
		if int(f.streams.Add(1)) <= f.cutStreams {
			fmt.Fprintf(writer, "data: %s\n\n", `{"candidates":[{"content":{"parts":[{"text":"Partial"}],"role":"model"}}]}`)
			fmt.Fprintf(writer, "data: %s\n\n", overloadedBody)
			return
		}
		for _, chunk := range []string{
			`{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":" world!"}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":3,"totalTokenCount":8}}`,
		} {
			fmt.Fprintf(writer, "data: %s\n\n", chunk)
		}
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write([]byte(generateBody))
}

func (f *fakeGemini) requestBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Gemini.APIKey = "test-key"
	cfg.Gemini.BaseURL = baseURL
	cfg.Gemini.Model = "gemini-2.5-pro"
	cfg.Retry.Delay = time.Millisecond
	cfg.LedgerPath = filepath.Join(t.TempDir(), "usage.sqlite")
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type result struct {
	code int
	out  string
	err  string
}

func runCommand(t *testing.T, cfg *config.Config, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), cfg, quietLogger(), args, streams{
		in:  strings.NewReader(stdin),
		out: &out,
		err: &errOut,
	})
	return result{code: code, out: out.String(), err: errOut.String()}
}

func TestRun_AskPrintsAnswerAndCost(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()
	cfg := testConfig(t, server.URL)

	res := runCommand(t, cfg, "", "ask", "-system", "Be brief.", "Summarise", "this")
	require.Equal(t, 0, res.code, res.err)
	require.Equal(t, "Hello there\n", res.out)
	require.Contains(t, res.err, "summary (base rates)")
	require.Contains(t, res.err, "1,200")

	bodies := fake.requestBodies()
	require.Len(t, bodies, 1)
	require.Contains(t, bodies[0], "Summarise this")
	require.Contains(t, bodies[0], "Be brief.")

	stats := runCommand(t, cfg, "", "stats")
	require.Equal(t, 0, stats.code, stats.err)
	require.Contains(t, stats.out, "gemini-2.5-pro")
	require.Contains(t, stats.out, "summary")
	require.Contains(t, stats.out, "1 requests")
}

func TestRun_AskReadsPromptFromStdin(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()

	res := runCommand(t, testConfig(t, server.URL), "  piped prompt\n", "ask", "-cost=false")
	require.Equal(t, 0, res.code, res.err)
	require.Empty(t, res.err)
	require.Contains(t, fake.requestBodies()[0], "piped prompt")
}

func TestRun_AskRetriesOverloadedProvider(t *testing.T) {
	fake := &fakeGemini{overloaded: 2}
	server := httptest.NewServer(fake)
	defer server.Close()

	res := runCommand(t, testConfig(t, server.URL), "", "ask", "hi")
	require.Equal(t, 0, res.code, res.err)
	require.Equal(t, "Hello there\n", res.out)
	require.Equal(t, int32(3), fake.calls.Load())
}

func TestRun_AskGivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeGemini{overloaded: 10}
	server := httptest.NewServer(fake)
	defer server.Close()
	cfg := testConfig(t, server.URL)
	cfg.Retry.MaxAttempts = 2

	res := runCommand(t, cfg, "", "ask", "hi")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.err, "Error:")
	require.Equal(t, int32(2), fake.calls.Load())
}

func TestRun_AskWithoutKey(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()
	cfg := testConfig(t, server.URL)
	cfg.Gemini.APIKey = ""

	res := runCommand(t, cfg, "", "ask", "hi")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.err, "GEMINI_API_KEY")
	require.Zero(t, fake.calls.Load())
}

func TestRun_ChatStreamsAndKeepsHistory(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()

	res := runCommand(t, testConfig(t, server.URL), "Hi\nAgain\n/stats\n/quit\n", "chat")
	require.Equal(t, 0, res.code, res.err)
	require.Equal(t, 2, strings.Count(res.out, "Hello world!\n"))
	require.Contains(t, res.out, "2 requests")

	bodies := fake.requestBodies()
	require.Len(t, bodies, 2)
	require.NotContains(t, bodies[0], "Hello world!")
	require.Contains(t, bodies[1], "Hello world!")
	require.Contains(t, bodies[1], "Again")
}

func TestRun_ChatDropsInterruptedAnswer(t *testing.T) {
	fake := &fakeGemini{cutStreams: 1}
	server := httptest.NewServer(fake)
	defer server.Close()

	res := runCommand(t, testConfig(t, server.URL), "Hi\nAgain\n/quit\n", "chat")
	require.Equal(t, 0, res.code, res.err)
	require.Contains(t, res.out, "Partial"+restartNotice+"Hello world!\n")
	require.Equal(t, 1, strings.Count(res.out, restartNotice))

	bodies := fake.requestBodies()
	require.Len(t, bodies, 3)
	require.NotContains(t, bodies[2], "Partial")
	require.Contains(t, bodies[2], `"Hello world!"`)
}

func TestRun_ChatKeyCommand(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()
	cfg := testConfig(t, server.URL)
	cfg.Gemini.APIKey = ""

	res := runCommand(t, cfg, "Hi\n/key new-key\nHi\n", "chat")
	require.Equal(t, 0, res.code, res.err)
	require.Contains(t, res.err, "API key is not configured")
	require.Contains(t, res.out, "API key updated")
	require.Contains(t, res.out, "Hello world!")
	require.Equal(t, int32(1), fake.calls.Load())
}

func TestRun_StatsAndResetNeedLedger(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.LedgerPath = ""

	for _, command := range []string{"stats", "reset"} {
		res := runCommand(t, cfg, "", command)
		require.Equal(t, 1, res.code, command)
		require.Contains(t, res.err, "LEDGER_PATH", command)
	}
}

func TestRun_Reset(t *testing.T) {
	fake := &fakeGemini{}
	server := httptest.NewServer(fake)
	defer server.Close()
	cfg := testConfig(t, server.URL)

	require.Equal(t, 0, runCommand(t, cfg, "", "ask", "hi").code)

	res := runCommand(t, cfg, "", "reset")
	require.Equal(t, 0, res.code, res.err)
	require.Contains(t, res.out, "ledger cleared")

	stats := runCommand(t, cfg, "", "stats")
	require.Equal(t, 0, stats.code, stats.err)
	require.Contains(t, stats.out, "No usage recorded")
	require.NotContains(t, stats.out, "All time")
}

func TestRun_StatsRejectsBadDay(t *testing.T) {
	res := runCommand(t, testConfig(t, "http://127.0.0.1:1"), "", "stats", "-day", "yesterday")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.err, "YYYY-MM-DD")
}

func TestRun_UsageAndUnknownCommand(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	help := runCommand(t, cfg, "", "help")
	require.Equal(t, 0, help.code)
	require.Contains(t, help.out, "GEMINI_API_KEY")

	unknown := runCommand(t, cfg, "", "fly")
	require.Equal(t, 2, unknown.code)
	require.Contains(t, unknown.err, `unknown command "fly"`)

	none := runCommand(t, cfg, "")
	require.Equal(t, 2, none.code)
}
