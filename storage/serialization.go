// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/tripkb/core"
)

// Records are encoded field by field with mus-go primitives. Field order is
// the wire format: append new fields at the end only.

func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

func MarshalMessage(msg *core.Message) []byte {
	size := ord.String.Size(msg.ID) +
		ord.String.Size(msg.GroupID) +
		ord.String.Size(msg.SenderID) +
		varint.Int64.Size(timeToMicros(msg.Timestamp)) +
		ord.String.Size(msg.Text)
	buf := make([]byte, size)
	n := ord.String.Marshal(msg.ID, buf)
	n += ord.String.Marshal(msg.GroupID, buf[n:])
	n += ord.String.Marshal(msg.SenderID, buf[n:])
	n += varint.Int64.Marshal(timeToMicros(msg.Timestamp), buf[n:])
	ord.String.Marshal(msg.Text, buf[n:])
	return buf
}

func UnmarshalMessage(data []byte) (*core.Message, error) {
	d := decoder{bs: data}
	msg := &core.Message{
		ID:        d.str(),
		GroupID:   d.str(),
		SenderID:  d.str(),
		Timestamp: d.timestamp(),
		Text:      d.str(),
	}
	if d.err != nil {
		return nil, d.err
	}
	return msg, nil
}

func MarshalGroup(group *core.Group) []byte {
	size := ord.String.Size(group.ID) +
		ord.String.Size(group.Name) +
		ord.Bool.Size(group.Managed) +
		stringsSize(group.CommunityKeys) +
		varint.Int64.Size(timeToMicros(group.LastIngest)) +
		ord.String.Size(group.Destination) +
		varint.Int64.Size(timeToMicros(group.TripStart)) +
		varint.Int64.Size(timeToMicros(group.TripEnd))
	buf := make([]byte, size)
	n := ord.String.Marshal(group.ID, buf)
	n += ord.String.Marshal(group.Name, buf[n:])
	n += ord.Bool.Marshal(group.Managed, buf[n:])
	n += marshalStrings(group.CommunityKeys, buf[n:])
	n += varint.Int64.Marshal(timeToMicros(group.LastIngest), buf[n:])
	n += ord.String.Marshal(group.Destination, buf[n:])
	n += varint.Int64.Marshal(timeToMicros(group.TripStart), buf[n:])
	varint.Int64.Marshal(timeToMicros(group.TripEnd), buf[n:])
	return buf
}

func UnmarshalGroup(data []byte) (*core.Group, error) {
	d := decoder{bs: data}
	group := &core.Group{
		ID:            d.str(),
		Name:          d.str(),
		Managed:       d.boolean(),
		CommunityKeys: d.strs(),
		LastIngest:    d.timestamp(),
		Destination:   d.str(),
		TripStart:     d.timestamp(),
		TripEnd:       d.timestamp(),
	}
	if d.err != nil {
		return nil, d.err
	}
	return group, nil
}

func MarshalTopic(record *core.KBTopicRecord) []byte {
	size := varint.Uint64.Size(uint64(record.Id)) +
		ord.String.Size(record.GroupID) +
		varint.Int64.Size(timeToMicros(record.StartTime)) +
		vectorSize(record.Vector) +
		ord.String.Size(record.Speakers) +
		ord.String.Size(record.Subject) +
		ord.String.Size(record.Summary) +
		ord.String.Size(record.Locations) +
		ord.String.Size(record.Events) +
		ord.String.Size(record.Preferences) +
		ord.String.Size(record.Sentiment)
	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(record.Id), buf)
	n += ord.String.Marshal(record.GroupID, buf[n:])
	n += varint.Int64.Marshal(timeToMicros(record.StartTime), buf[n:])
	n += marshalVector(record.Vector, buf[n:])
	n += ord.String.Marshal(record.Speakers, buf[n:])
	n += ord.String.Marshal(record.Subject, buf[n:])
	n += ord.String.Marshal(record.Summary, buf[n:])
	n += ord.String.Marshal(record.Locations, buf[n:])
	n += ord.String.Marshal(record.Events, buf[n:])
	n += ord.String.Marshal(record.Preferences, buf[n:])
	ord.String.Marshal(record.Sentiment, buf[n:])
	return buf
}

func UnmarshalTopic(data []byte) (*core.KBTopicRecord, error) {
	d := decoder{bs: data}
	record := &core.KBTopicRecord{
		Id:          core.ID(d.u64()),
		GroupID:     d.str(),
		StartTime:   d.timestamp(),
		Vector:      d.vector(),
		Speakers:    d.str(),
		Subject:     d.str(),
		Summary:     d.str(),
		Locations:   d.str(),
		Events:      d.str(),
		Preferences: d.str(),
		Sentiment:   d.str(),
	}
	if d.err != nil {
		return nil, d.err
	}
	return record, nil
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func stringsSize(ss []string) int {
	size := varint.Int.Size(len(ss))
	for _, s := range ss {
		size += ord.String.Size(s)
	}
	return size
}

func marshalStrings(ss []string, bs []byte) int {
	n := varint.Int.Marshal(len(ss), bs)
	for _, s := range ss {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func vectorSize(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

// decoder reads fields in sequence and keeps the first error. Once an
// error is recorded every further read returns the zero value.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return ""
	}
	d.n += n
	return v
}

func (d *decoder) boolean() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return false
	}
	d.n += n
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) length() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	if v < 0 || v > len(d.bs)-d.n-n {
		d.fail(ErrTruncatedData)
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) timestamp() time.Time {
	if d.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return time.Time{}
	}
	d.n += n
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func (d *decoder) strs() []string {
	count := d.length()
	if count == 0 {
		return nil
	}
	out := make([]string, 0, count)
	for i := 0; i < count && d.err == nil; i++ {
		out = append(out, d.str())
	}
	return out
}

func (d *decoder) vector() []float32 {
	count := d.length()
	if count == 0 {
		return nil
	}
	out := make([]float32, count)
	for i := range out {
		if d.err != nil {
			return nil
		}
		v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
		if err != nil {
			d.fail(err)
			return nil
		}
		out[i] = v
		d.n += n
	}
	return out
}
