package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/config"
	"bastion-server/internal/domain/billing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	for _, c := range cmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		resetFlags(c)
	}
}

func TestWebhookSignFromStdin(t *testing.T) {
	payload := `{"event":"charge.success","data":{"reference":"ref-1"}}`
	out, err := execute(t, payload, "webhook", "sign", "--secret", "sk_test")
	require.NoError(t, err)
	assert.Equal(t, billing.SignPayload("sk_test", []byte(payload)), strings.TrimSpace(out))
}

func TestWebhookSignPostsToURL(t *testing.T) {
	payload := `{"event":"charge.success"}`
	var gotSignature string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(signatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	out, err := execute(t, "", "webhook", "sign", "--secret", "sk_test", "--file", path, "--url", server.URL)
	require.NoError(t, err)
	assert.True(t, billing.VerifySignature("sk_test", gotBody, gotSignature))
	assert.Contains(t, out, `200 {"ok":true}`)
}

func TestWebhookSignRequiresSecret(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "")
	_, err := execute(t, "{}", "webhook", "sign", "--secret", "")
	assert.Error(t, err)
}

func TestPrintModels(t *testing.T) {
	rows := []modelRow{
		{ModelEntry: config.ModelEntry{ID: "gpt-4o", Provider: "OpenAI", ProviderID: "openai", ContextWindow: 128000, Enabled: true, Default: true}, ProviderReady: true},
	}

	var table bytes.Buffer
	require.NoError(t, printModels(&table, rows, "table"))
	assert.Contains(t, table.String(), "PROVIDER READY")
	assert.Contains(t, table.String(), "gpt-4o")

	var js bytes.Buffer
	require.NoError(t, printModels(&js, rows, "json"))
	assert.Contains(t, js.String(), `"ID": "gpt-4o"`)
	assert.Contains(t, js.String(), `"providerReady": true`)

	assert.Error(t, printModels(&bytes.Buffer{}, rows, "xml"))
}

func TestModelsListMarksReadyProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yml")
	require.NoError(t, os.WriteFile(path, []byte(`models:
  - id: gpt-4o-mini
    name: GPT-4o mini
    provider: OpenAI
    providerId: openai
    contextWindow: 128000
  - id: claude-sonnet-4-5
    name: Claude Sonnet 4.5
    provider: Anthropic
    providerId: anthropic
    contextWindow: 200000
`), 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")

	out, err := execute(t, "", "models", "list", "--file", path, "--format", "json")
	require.NoError(t, err)

	var rows []struct {
		ID            string
		ProviderReady bool `json:"providerReady"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].ProviderReady)
	assert.False(t, rows[1].ProviderReady)
}
