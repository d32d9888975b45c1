package omndx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjabrac/omndx/backend"
	"github.com/wjabrac/omndx/config"
	"github.com/wjabrac/omndx/invoke"
	"github.com/wjabrac/omndx/memory"
	"github.com/wjabrac/omndx/memory/embedder/hash"
)

func testDefaults() *config.Defaults {
	return &config.Defaults{
		Timeout:     time.Second,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
	}
}

func TestNew_FakeCycleAlwaysReturnsConfiguredResponse(t *testing.T) {
	agent, err := New(backend.Config{
		"model_name":     backend.FakeModelName,
		"responses":      []string{"ok"},
		"responses_mode": backend.ModeCycle,
	}, func(o *Options) { o.Defaults = testDefaults() })
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		out, err := agent.Generate(context.Background(), "anything")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
}

func TestNew_UnknownKeyFails(t *testing.T) {
	agent, err := New(backend.Config{
		"model_name": backend.FakeModelName,
		"bogus":      true,
	}, func(o *Options) { o.Defaults = testDefaults() })
	assert.Nil(t, agent)
	var cfgErr *backend.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGenerate_PopExhaustionSurfacesBackendError(t *testing.T) {
	agent, err := New(backend.Config{
		"model_name":     backend.FakeModelName,
		"responses":      []string{"only"},
		"responses_mode": backend.ModePop,
	}, func(o *Options) { o.Defaults = testDefaults() })
	require.NoError(t, err)

	out, err := agent.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "only", out)

	_, err = agent.Generate(context.Background(), "x", invoke.WithMaxRetries(4))
	var be *invoke.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Attempts, "exhaustion is fatal, not retried")
	assert.ErrorIs(t, err, backend.ErrResponsesExhausted)
}

func TestNew_MissingCredentialsFallsBackToFake(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OMNDX_REQUIRE_REAL_BACKEND", "")

	agent, err := New(backend.Config{"model_name": "gpt-test"},
		func(o *Options) { o.Defaults = testDefaults() })
	require.NoError(t, err)
	assert.Equal(t, backend.KindFake, agent.Backend().Kind())

	out, err := agent.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "fake-response", out)
}

func TestNew_RequireRealBackendFailsClosed(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	d := testDefaults()
	d.RequireRealBackend = true
	agent, err := New(backend.Config{"model_name": "gpt-test"},
		func(o *Options) { o.Defaults = d })
	assert.Nil(t, agent)
	var cfgErr *backend.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDefaultProviderFactory_PicksSDKByModelName(t *testing.T) {
	p, err := DefaultProviderFactory(backend.ProviderSettings{
		ModelName: "claude-sonnet-4-5", APIKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = DefaultProviderFactory(backend.ProviderSettings{
		ModelName: "gpt-4o-mini", APIKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestMemory_RememberRecallClear(t *testing.T) {
	agent, err := New(backend.Config{"model_name": backend.FakeModelName},
		func(o *Options) { o.Defaults = testDefaults() })
	require.NoError(t, err)
	assert.False(t, agent.IsSemanticEnabled())

	_, err = agent.Remember(context.Background(), "the sky is blue", map[string]any{"topic": "sky"})
	require.NoError(t, err)
	_, err = agent.Remember(context.Background(), "grass is green", nil)
	require.NoError(t, err)

	recs, err := agent.Recall(context.Background(), "sky", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "the sky is blue", recs[0].Text)
	assert.Equal(t, "sky", recs[0].Metadata["topic"])

	require.NoError(t, agent.ClearMemory())
	recs, err = agent.Recall(context.Background(), "sky", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemory_SemanticStoreViaOptions(t *testing.T) {
	agent, err := New(backend.Config{"model_name": backend.FakeModelName},
		func(o *Options) {
			o.Defaults = testDefaults()
			o.Memory = memory.NewStore(func(mo *memory.Options) { mo.Embedder = hash.New() })
		})
	require.NoError(t, err)
	assert.True(t, agent.IsSemanticEnabled())

	_, err = agent.Remember(context.Background(), "vector search works", nil)
	require.NoError(t, err)
	recs, err := agent.Recall(context.Background(), "vector search works", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "vector search works", recs[0].Text)
}
