package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/premjatin/LLM-WebSearch/agent"
	"github.com/premjatin/LLM-WebSearch/storage"
	"github.com/premjatin/LLM-WebSearch/tools"
)

// testOptions points every path at a temp dir and isolates the test from the
// caller's environment.
func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "searchy.yaml")
	body := fmt.Sprintf("rag:\n  dir: %s\n", filepath.Join(dir, "vector_store"))
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))

	for _, key := range []string{"SEARCHY_CONFIG", "LLM_PROVIDER", "LLM_MODEL", "RAG_DIR", "EMBEDDING_PROVIDER", "METRICS_ADDR", "SEARCHY_DB", "SEARCHY_USER"} {
		t.Setenv(key, "")
	}
	t.Setenv("GROQ_API_KEY", "test-key")

	return Options{
		ConfigPath: cfg,
		DBPath:     filepath.Join(dir, "searchy.db"),
		UserID:     "alice",
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	opts := testOptions(t)
	opts.Provider = "gpt"
	opts.MaxSteps = 4
	opts.Verbose = true

	settings, err := LoadSettings(opts)
	require.NoError(t, err)
	assert.Equal(t, "openai", settings.LLM.Provider)
	assert.Equal(t, 4, settings.Agent.MaxSteps)
	assert.Equal(t, "debug", settings.Log.Level)
	assert.Equal(t, opts.DBPath, settings.Storage.Path)
	assert.Equal(t, "alice", settings.Storage.UserID)
}

func TestLoadSettingsRejectsUnknownProvider(t *testing.T) {
	opts := testOptions(t)
	opts.Provider = "nope"

	_, err := LoadSettings(opts)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ListTools(testOptions(t), true, &out))

	text := out.String()
	retrieval := strings.Index(text, tools.RetrievalToolName)
	search := strings.Index(text, tools.WebSearchToolName)
	require.GreaterOrEqual(t, retrieval, 0)
	require.GreaterOrEqual(t, search, 0)
	assert.Less(t, retrieval, search, "retrieval tool is registered first")
	assert.Contains(t, text, "- query (string)")
	assert.Contains(t, text, "[required]")
}

func TestPrintToolsRejectsDuplicateNames(t *testing.T) {
	kb := tools.NewRetrievalTool(nil, 3)
	err := printTools([]tools.Tool{kb, kb}, false, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestChatExitsWithoutCallingModel(t *testing.T) {
	opts := testOptions(t)
	var out bytes.Buffer

	err := Chat(context.Background(), 0, opts, strings.NewReader("\nexit\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Started conversation 1")

	var list bytes.Buffer
	require.NoError(t, ListConversations(context.Background(), opts, &list))
	assert.Contains(t, list.String(), "MESSAGES")
}

func TestChatUnknownConversationStartsNew(t *testing.T) {
	opts := testOptions(t)
	var out bytes.Buffer

	err := Chat(context.Background(), 42, opts, strings.NewReader("quit\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Conversation 42 not found, started conversation 1")
}

func TestDeleteConversation(t *testing.T) {
	opts := testOptions(t)
	ctx := context.Background()

	require.NoError(t, Chat(ctx, 0, opts, strings.NewReader("exit\n"), &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, DeleteConversation(ctx, 1, opts, &out))
	assert.Equal(t, "Deleted conversation 1\n", out.String())

	err := DeleteConversation(ctx, 1, opts, &out)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestSearchNotReady(t *testing.T) {
	err := Search(context.Background(), "anything", 0, testOptions(t), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestPrintConversations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var empty bytes.Buffer
	require.NoError(t, printConversations(ctx, store, "bob", &empty))
	assert.Equal(t, "No conversations for bob.\n", empty.String())

	first, err := store.GetOrCreateConversation(ctx, "bob", 0)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, first.Ref(), storage.SenderUser, "hi"))
	_, err = store.GetOrCreateConversation(ctx, "bob", 0)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printConversations(ctx, store, "bob", &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2 "), "newest first: %q", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], " 1"), "message count: %q", lines[2])
}

func TestDescribeRunError(t *testing.T) {
	err := fmt.Errorf("agent step 15: %w", &agent.StepLimitError{Limit: 15, Steps: 15})
	assert.Contains(t, describeRunError(err).Error(), "gave up after 15 steps")

	plain := fmt.Errorf("boom")
	assert.Equal(t, plain, describeRunError(plain))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "héll...", truncateString("héllo wörld", 4))
}
