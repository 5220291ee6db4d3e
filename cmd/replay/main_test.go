package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTranscript(t *testing.T) {
	transcript, err := loadTranscript("testdata/angry_customer.json")
	require.NoError(t, err)

	assert.Equal(t, "Corner Shop", transcript.Business.Name)
	require.Len(t, transcript.Turns, 5)
	assert.True(t, transcript.Turns[0].AI.GatheringInfo)
}

func TestLoadTranscript_Missing(t *testing.T) {
	_, err := loadTranscript("testdata/does-not-exist.json")
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	transcript, err := loadTranscript("testdata/angry_customer.json")
	require.NoError(t, err)
	assert.NoError(t, replay(transcript))
}

func TestReplay_InvalidOffset(t *testing.T) {
	transcript := &Transcript{Turns: []Turn{{At: "soon", Message: "hello"}}}
	assert.Error(t, replay(transcript))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
