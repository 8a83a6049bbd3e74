package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "geonewsdb", cfg.MongoDBName)
	assert.Equal(t, "rabbit", cfg.SourceKind)
	assert.Equal(t, "news.events", cfg.RabbitQueue)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.MaxMessages)
	assert.Equal(t, 20*time.Second, cfg.WaitTime)
	assert.Equal(t, 30*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReceiveBackoff)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "en", cfg.TargetLang)
	assert.Equal(t, 20, cfg.MinBodyLength)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv(SourceKind, "kafka")
	t.Setenv(KafkaBrokers, "b1:9092,b2:9092")
	t.Setenv(MaxMessages, "5")
	t.Setenv(WaitTime, "3s")
	t.Setenv(TargetLang, "de")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.SourceKind)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.MaxMessages)
	assert.Equal(t, 3*time.Second, cfg.WaitTime)
	assert.Equal(t, "de", cfg.TargetLang)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("bad source kind", func(t *testing.T) {
		t.Setenv(SourceKind, "sqs")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("batch size out of range", func(t *testing.T) {
		t.Setenv(MaxMessages, "50")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv(VisibilityTimeout, "soon")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unparseable int", func(t *testing.T) {
		t.Setenv(Workers, "many")
		_, err := FromEnv()
		require.Error(t, err)
	})
}
