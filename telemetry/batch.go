package telemetry

import (
	"bytes"

	"go.uber.org/zap"
)

// DefaultCapacity bounds the serialized batch. It matches the fixed document
// budget of the fan controller firmware this daemon replaces, which the
// ingest endpoint is sized for.
const DefaultCapacity = 8192

// An empty flush still releases the backing buffer once it has grown past
// this share of the capacity.
const highWaterPct = 80

// Sender ships one serialized batch (a JSON array) to the ingest endpoint.
type Sender interface {
	Send(payload []byte) error
}

// Batch accumulates rendered records up to the byte budget. Every record is
// stamped with the node identity tags and the uptime field at append time.
// Not safe for concurrent use; the controller serializes all access.
type Batch struct {
	capacity int
	device   string
	chipId   string
	sender   Sender
	uptimeMs func() uint64

	buf   bytes.Buffer // rendered records joined by ','
	count int
}

func NewBatch(device, chipId string, sender Sender, uptimeMs func() uint64) *Batch {
	return &Batch{
		capacity: DefaultCapacity,
		device:   device,
		chipId:   chipId,
		sender:   sender,
		uptimeMs: uptimeMs,
	}
}

// Len returns the number of queued records.
func (b *Batch) Len() int {
	return b.count
}

// Size returns the serialized size of the batch as it would be sent,
// including the enclosing array brackets.
func (b *Batch) Size() int {
	return b.buf.Len() + 2
}

// render produces the final wire form of rec: node identity tags first, then
// the record's own tags; the record's fields plus the uptime stamp.
func (b *Batch) render(rec Record) []byte {
	full := Record{Measurement: rec.Measurement}
	full.Tags.Add("device", b.device)
	full.Tags.Add("chip_id", b.chipId)
	full.Tags = append(full.Tags, rec.Tags...)
	full.Fields = append(full.Fields, rec.Fields...)
	full.Fields.Uint("arduino_millis", b.uptimeMs())
	var buf bytes.Buffer
	full.appendJSON(&buf)
	return buf.Bytes()
}

// Append queues one record. When the rendered batch would exceed the byte
// budget, the batch is flushed and the append retried once; a record that
// cannot fit even in an empty batch is dropped.
func (b *Batch) Append(rec Record) {
	rendered := b.render(rec)
	if b.tryAppend(rendered) {
		return
	}
	b.Flush()
	if !b.tryAppend(rendered) {
		zap.L().Error("telemetry record exceeds batch capacity, dropped",
			zap.String("measurement", rec.Measurement),
			zap.Int("size", len(rendered)),
			zap.Int("capacity", b.capacity))
	}
}

func (b *Batch) tryAppend(rendered []byte) bool {
	need := b.buf.Len() + len(rendered) + 2
	if b.count > 0 {
		need++ // separator
	}
	if need > b.capacity {
		return false
	}
	if b.count > 0 {
		b.buf.WriteByte(',')
	}
	b.buf.Write(rendered)
	b.count++
	return true
}

// Flush serializes the queued records as one JSON array and hands it to the
// sender. The batch is cleared whether or not the send succeeds; the ingest
// path is fire-and-forget and a failed upload is accepted loss. An empty
// flush sends nothing, but releases the backing buffer once it has grown
// past the high-water mark.
func (b *Batch) Flush() {
	if b.count == 0 {
		if b.buf.Cap() > b.capacity*highWaterPct/100 {
			b.buf = bytes.Buffer{}
		}
		return
	}
	payload := make([]byte, 0, b.buf.Len()+2)
	payload = append(payload, '[')
	payload = append(payload, b.buf.Bytes()...)
	payload = append(payload, ']')
	count := b.count
	b.buf.Reset()
	b.count = 0
	if err := b.sender.Send(payload); err != nil {
		zap.L().Error("telemetry flush failed, batch dropped",
			zap.Int("records", count), zap.Int("size", len(payload)), zap.Error(err))
		return
	}
	zap.L().Debug("telemetry batch sent",
		zap.Int("records", count), zap.Int("size", len(payload)))
}
