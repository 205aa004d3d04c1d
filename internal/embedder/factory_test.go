package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		jinaKey   string
		openaiKey string
		expected  string
	}{
		{name: "explicit jina", cfg: Config{Provider: "jina"}, expected: ProviderJina},
		{name: "explicit openai, case insensitive", cfg: Config{Provider: " OpenAI "}, expected: ProviderOpenAI},
		{name: "explicit local", cfg: Config{Provider: "local"}, jinaKey: "k", expected: ProviderLocal},
		{name: "explicit none", cfg: Config{Provider: "none"}, expected: ProviderNone},
		{name: "auto with jina key", cfg: Config{Provider: "auto"}, jinaKey: "k", openaiKey: "k", expected: ProviderJina},
		{name: "auto with openai key", cfg: Config{}, openaiKey: "k", expected: ProviderOpenAI},
		{name: "auto with configured key", cfg: Config{APIKey: "k"}, expected: ProviderOpenAI},
		{name: "auto without keys", cfg: Config{}, expected: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)
			assert.Equal(t, tt.expected, DetectProvider(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	t.Run("local", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal, Dimension: 64})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, 64, emb.Dimension())
	})

	t.Run("auto falls back to local", func(t *testing.T) {
		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("none", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderNone})
		require.NoError(t, err)
		assert.Nil(t, emb)
	})

	t.Run("openai without key", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderOpenAI})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("openai with key", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderOpenAI, APIKey: "k", BaseURL: "http://localhost:8080/v1"})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, DefaultOpenAIModel, emb.Model())
		assert.Equal(t, OpenAIDimension, emb.Dimension())
	})

	t.Run("jina from environment", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "k")
		emb, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, emb.Provider())
		assert.Equal(t, DefaultJinaModel, emb.Model())
		assert.Equal(t, JinaDimension, emb.Dimension())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}
