package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_AppendTurns(t *testing.T) {
	var s Session
	s.AppendTurns(ChatTurn{Role: "user", Content: "hi"})
	assert.Len(t, s.Transcript, 1)

	for i := 0; i < MaxTranscriptTurns+5; i++ {
		s.AppendTurns(ChatTurn{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}
	assert.Len(t, s.Transcript, MaxTranscriptTurns)
	assert.Equal(t, fmt.Sprintf("turn %d", MaxTranscriptTurns+4), s.Transcript[MaxTranscriptTurns-1].Content)
	assert.Equal(t, "turn 5", s.Transcript[0].Content)
}

func TestSession_AppendTurnsDoesNotAlias(t *testing.T) {
	var original Session
	original.AppendTurns(ChatTurn{Content: "a"}, ChatTurn{Content: "b"})

	snapshot := original
	original.AppendTurns(ChatTurn{Content: "c"})
	snapshot.AppendTurns(ChatTurn{Content: "d"})

	assert.Equal(t, "c", original.Transcript[2].Content)
	assert.Equal(t, "d", snapshot.Transcript[2].Content)
}
