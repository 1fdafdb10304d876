package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(lat float64) models.EventRecord {
	return models.EventRecord{
		Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Latitude:  lat,
		Longitude: -122.0,
		Source:    "test-device",
	}
}

func openTestQueue(t *testing.T, path string) *DurableQueue {
	t.Helper()
	q, err := NewDurableQueue(path, zerolog.Nop())
	require.NoError(t, err)
	return q
}

func TestDurableQueue_AppendAndDrainKeepOrder(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "spool.jsonl"))
	defer q.Close()

	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Append(testRecord(2.0)))
	require.NoError(t, q.Append(testRecord(3.0)))
	assert.Equal(t, 3, q.Size())

	records, err := q.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, float64(i+1), record.Latitude)
		assert.Equal(t, "test-device", record.Source)
	}

	// Drain does not consume
	records, err = q.DrainAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 3, q.Size())
}

func TestDurableQueue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")

	q := openTestQueue(t, path)
	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Append(testRecord(2.0)))
	require.NoError(t, q.Close())

	reopened := openTestQueue(t, path)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Size())
	records, err := reopened.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1.0, records[0].Latitude)
	assert.Equal(t, 2.0, records[1].Latitude)
	assert.True(t, testRecord(1.0).Timestamp.Equal(records[0].Timestamp))
}

func TestDurableQueue_Clear(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "spool.jsonl"))
	defer q.Close()

	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Clear())

	assert.Equal(t, 0, q.Size())
	records, err := q.DrainAll()
	require.NoError(t, err)
	assert.Empty(t, records)

	// The spool is usable again after a clear
	require.NoError(t, q.Append(testRecord(2.0)))
	assert.Equal(t, 1, q.Size())
}

func TestDurableQueue_TruncateHeadKeepsLaterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")

	q := openTestQueue(t, path)
	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Append(testRecord(2.0)))
	require.NoError(t, q.Append(testRecord(3.0)))

	require.NoError(t, q.TruncateHead(2))

	assert.Equal(t, 1, q.Size())
	records, err := q.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3.0, records[0].Latitude)

	// The spool keeps accepting appends and the result survives a reopen
	require.NoError(t, q.Append(testRecord(4.0)))
	require.NoError(t, q.Close())

	reopened := openTestQueue(t, path)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.Size())
	records, err = reopened.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3.0, records[0].Latitude)
	assert.Equal(t, 4.0, records[1].Latitude)
}

func TestDurableQueue_TruncateHeadBounds(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "spool.jsonl"))
	defer q.Close()

	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Append(testRecord(2.0)))

	// n <= 0 is a no-op
	require.NoError(t, q.TruncateHead(0))
	assert.Equal(t, 2, q.Size())

	// n beyond the spool length empties it
	require.NoError(t, q.TruncateHead(5))
	assert.Equal(t, 0, q.Size())
	records, err := q.DrainAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDurableQueue_SkipsTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")

	q := openTestQueue(t, path)
	require.NoError(t, q.Append(testRecord(1.0)))
	require.NoError(t, q.Close())

	// Simulate a crash mid-append: a truncated JSON fragment at the tail
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2026-08-29T12:`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openTestQueue(t, path)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Size())
	records, err := reopened.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1.0, records[0].Latitude)

	// Appends after recovery must not glue onto the torn fragment
	require.NoError(t, reopened.Append(testRecord(2.0)))
	records, err = reopened.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2.0, records[1].Latitude)
}

func TestDurableQueue_OptionalFieldsRoundTrip(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "spool.jsonl"))
	defer q.Close()

	altitude := 12.5
	heading := 270.0
	record := testRecord(1.0)
	record.Altitude = &altitude
	record.Heading = &heading

	require.NoError(t, q.Append(record))

	records, err := q.DrainAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Altitude)
	assert.Equal(t, altitude, *records[0].Altitude)
	require.NotNil(t, records[0].Heading)
	assert.Equal(t, heading, *records[0].Heading)
	assert.Nil(t, records[0].Accuracy)
	assert.Nil(t, records[0].Speed)
}
