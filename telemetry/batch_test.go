package telemetry

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	payloads [][]byte
	err      error
}

func (f *fakeSender) Send(p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func fixedUptime() uint64 { return 123456 }

func sampleRecord() Record {
	rec := Record{Measurement: "si7021"}
	rec.Tags.Add("bus_id", "1")
	rec.Fields.Float("temp_c", 21.5)
	rec.Fields.Float("humidity", 48.25)
	return rec
}

func TestBatchStampsIdentity(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)

	b.Append(sampleRecord())
	assert.Equal(t, 1, b.Len())
	b.Flush()

	require.Len(t, sender.payloads, 1)
	payload := string(sender.payloads[0])
	assert.True(t, json.Valid(sender.payloads[0]))
	assert.True(t, strings.HasPrefix(payload,
		`[{"measurement":"si7021","tags":{"device":"fan0","chip_id":"abc123def4567890","bus_id":"1"}`), payload)
	assert.Contains(t, payload, `"arduino_millis":123456}`)
	assert.Equal(t, 0, b.Len())
}

func TestBatchFlushOnOverflow(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)

	recordLen := len(b.render(sampleRecord()))
	// Largest n with n records, n-1 separators and 2 brackets inside budget.
	fit := (DefaultCapacity - 1) / (recordLen + 1)

	for i := 0; i < fit; i++ {
		b.Append(sampleRecord())
	}
	assert.Empty(t, sender.payloads)
	assert.Equal(t, fit, b.Len())
	assert.LessOrEqual(t, b.Size(), DefaultCapacity)

	// One more record cannot fit: exactly one flush, then the append lands
	// in the fresh batch.
	b.Append(sampleRecord())
	require.Len(t, sender.payloads, 1)
	assert.Equal(t, 1, b.Len())

	payload := sender.payloads[0]
	assert.LessOrEqual(t, len(payload), DefaultCapacity)
	require.True(t, json.Valid(payload))
	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &records))
	assert.Len(t, records, fit)
}

func TestBatchSizeMatchesPayload(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)
	assert.Equal(t, 2, b.Size())

	for i := 0; i < 10; i++ {
		b.Append(sampleRecord())
	}
	size := b.Size()
	b.Flush()
	require.Len(t, sender.payloads, 1)
	assert.Equal(t, size, len(sender.payloads[0]))
}

func TestBatchClearedOnSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)

	b.Append(sampleRecord())
	b.Append(sampleRecord())
	b.Flush()

	// The failed upload is accepted loss; nothing is retained or retried.
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 2, b.Size())
	sender.err = nil
	b.Flush()
	assert.Empty(t, sender.payloads)
}

func TestOversizeRecordDropped(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)

	huge := Record{Measurement: "boot"}
	huge.Fields.Str("hardware_config", strings.Repeat("x", DefaultCapacity))
	b.Append(huge)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, sender.payloads)

	// A queued record still goes out before the oversize one is dropped.
	b.Append(sampleRecord())
	b.Append(huge)
	require.Len(t, sender.payloads, 1)
	assert.Equal(t, 0, b.Len())
	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(sender.payloads[0], &records))
	assert.Len(t, records, 1)
}

func TestEmptyFlushReleasesBuffer(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatch("fan0", "abc123def4567890", sender, fixedUptime)

	recordLen := len(b.render(sampleRecord()))
	for i := 0; i < (DefaultCapacity-1)/(recordLen+1); i++ {
		b.Append(sampleRecord())
	}
	b.Flush()
	require.Len(t, sender.payloads, 1)
	assert.Greater(t, b.buf.Cap(), DefaultCapacity*highWaterPct/100)

	b.Flush()
	assert.Equal(t, 0, b.buf.Cap())

	// Small batches keep their store across empty flushes.
	b.Append(sampleRecord())
	b.Flush()
	b.Flush()
	assert.Greater(t, b.buf.Cap(), 0)
}
