// Package telemetry renders sensor readings into ingest records and
// accumulates them in a size-bounded batch for bulk upload.
package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Tag is one ordered key/value pair in a record's tag set.
type Tag struct {
	Key   string
	Value string
}

type Tags []Tag

func (t *Tags) Add(key, value string) {
	*t = append(*t, Tag{Key: key, Value: value})
}

// Field is one ordered key plus a pre-rendered JSON value. Values commit to
// their wire form at insertion time, so a float is fixed to its six-decimal
// text exactly once.
type Field struct {
	Key string
	raw []byte
}

type Fields []Field

// Float renders v with six decimal places. The ingest store infers a column
// type from the first value it sees under a field name, so a float that
// happens to be whole must still read "0.000000", never "0". Non-finite
// values render as null.
func (f *Fields) Float(key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*f = append(*f, Field{Key: key, raw: []byte("null")})
		return
	}
	*f = append(*f, Field{Key: key, raw: strconv.AppendFloat(nil, v, 'f', 6, 64)})
}

// Int renders v without a decimal point.
func (f *Fields) Int(key string, v int64) {
	*f = append(*f, Field{Key: key, raw: strconv.AppendInt(nil, v, 10)})
}

func (f *Fields) Uint(key string, v uint64) {
	*f = append(*f, Field{Key: key, raw: strconv.AppendUint(nil, v, 10)})
}

func (f *Fields) Bool(key string, v bool) {
	*f = append(*f, Field{Key: key, raw: strconv.AppendBool(nil, v)})
}

func (f *Fields) Str(key, v string) {
	b, _ := json.Marshal(v)
	*f = append(*f, Field{Key: key, raw: b})
}

// Record is one measurement on its way to the ingest endpoint.
type Record struct {
	Measurement string
	Tags        Tags
	Fields      Fields
}

func appendKey(b *bytes.Buffer, key string) {
	kb, _ := json.Marshal(key)
	b.Write(kb)
	b.WriteByte(':')
}

func (t Tags) appendJSON(b *bytes.Buffer) {
	b.WriteByte('{')
	for i, tag := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		appendKey(b, tag.Key)
		vb, _ := json.Marshal(tag.Value)
		b.Write(vb)
	}
	b.WriteByte('}')
}

func (f Fields) appendJSON(b *bytes.Buffer) {
	b.WriteByte('{')
	for i, fd := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		appendKey(b, fd.Key)
		b.Write(fd.raw)
	}
	b.WriteByte('}')
}

func (r Record) appendJSON(b *bytes.Buffer) {
	b.WriteString(`{"measurement":`)
	mb, _ := json.Marshal(r.Measurement)
	b.Write(mb)
	b.WriteString(`,"tags":`)
	r.Tags.appendJSON(b)
	b.WriteString(`,"fields":`)
	r.Fields.appendJSON(b)
	b.WriteByte('}')
}

// MarshalJSON preserves tag and field insertion order.
func (r Record) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	r.appendJSON(&b)
	return b.Bytes(), nil
}

func (t Tags) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	t.appendJSON(&b)
	return b.Bytes(), nil
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	f.appendJSON(&b)
	return b.Bytes(), nil
}
