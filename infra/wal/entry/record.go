// Package entry journals every request accepted by the sequencer, in
// serialization order, to CRC-framed segment files. The journal is an
// audit artifact: together with the deterministic matching algorithm
// it makes the produced trade sequence reproducible. It is never read
// on startup; book state does not survive restarts.
package entry

import "time"

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
