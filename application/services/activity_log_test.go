package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog_NewestFirst(t *testing.T) {
	log := NewActivityLog(40)
	log.Push(ToneInfo, "first", nil, nil)
	log.Push(ToneInfo, "second", nil, nil)

	entries := log.Entries(LogFilter{})
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "first", entries[1].Message)
}

func TestActivityLog_EvictsOldestPastCap(t *testing.T) {
	log := NewActivityLog(40)
	for i := 0; i < 45; i++ {
		log.Push(ToneInfo, fmt.Sprintf("entry %d", i), nil, nil)
	}

	assert.Equal(t, 40, log.Len())
	entries := log.Entries(LogFilter{})
	assert.Equal(t, "entry 44", entries[0].Message)
	assert.Equal(t, "entry 5", entries[len(entries)-1].Message)
}

func TestActivityLog_FilterByKind(t *testing.T) {
	log := NewActivityLog(40)
	log.Push(ToneInfo, "capsule event", &LogContext{Kind: KindCapsuleRun}, nil)
	log.Push(ToneInfo, "generation event", &LogContext{Kind: KindGeneration}, nil)
	log.Push(ToneInfo, "bare event", nil, nil)

	entries := log.Entries(LogFilter{Kind: KindGeneration})
	require.Len(t, entries, 1)
	assert.Equal(t, "generation event", entries[0].Message)
}

func TestActivityLog_FilterErrorsOnly(t *testing.T) {
	log := NewActivityLog(40)
	log.Push(ToneInfo, "fine", nil, nil)
	log.Push(ToneSuccess, "great", nil, nil)
	log.Push(ToneWarning, "hmm", nil, nil)
	log.Push(ToneError, "bad", nil, nil)

	entries := log.Entries(LogFilter{ErrorsOnly: true})
	require.Len(t, entries, 2)
	assert.Equal(t, "bad", entries[0].Message)
	assert.Equal(t, "hmm", entries[1].Message)
}

func TestActivityLog_Clear(t *testing.T) {
	log := NewActivityLog(40)
	log.Push(ToneInfo, "x", nil, nil)
	log.Clear()
	assert.Zero(t, log.Len())
}

func TestActivityLog_DefaultCap(t *testing.T) {
	log := NewActivityLog(0)
	for i := 0; i < 50; i++ {
		log.Push(ToneInfo, "x", nil, nil)
	}
	assert.Equal(t, 40, log.Len())
}

func TestActivityLog_EntriesCarryContextAndMetrics(t *testing.T) {
	log := NewActivityLog(40)
	log.Push(ToneSuccess, "run done", &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     "run-1",
		CapsuleID: "cap-1",
	}, &LogMetrics{LatencyMS: 812})

	entries := log.Entries(LogFilter{})
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.NotEmpty(t, entry.ID)
	require.NotNil(t, entry.Context)
	assert.Equal(t, "run-1", entry.Context.RunID)
	require.NotNil(t, entry.Metrics)
	assert.EqualValues(t, 812, entry.Metrics.LatencyMS)
}
