// Package exit is the durable outbox between the matching engine and
// the Kafka broadcaster. Each record is one encoded trade event keyed
// by its event sequence, with a delivery state that the broadcaster
// advances NEW -> SENT -> ACKED. Delivery is at-least-once: a crash
// between SENT and ACKED replays the record.
package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeValue(r Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Payload)
	return buf
}

func decodeValue(seq uint64, b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("exit: short outbox value")
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[13:]...),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // delivery state must survive crashes
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Append stores a new pending event.
func (o *Outbox) Append(seq uint64, payload []byte) error {
	rec := Record{Seq: seq, State: StateNew, Payload: payload}
	return o.db.Set(keyFor(seq), encodeValue(rec), pebble.Sync)
}

// MarkSent bumps the record into SENT and counts the attempt.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = time.Now().UnixNano()
	})
}

func (o *Outbox) MarkAcked(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateAcked
	})
}

func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeValue(seq, val)
}

// MaxSeq returns the highest sequence present, 0 when the outbox is
// empty. New writers must continue above it so undelivered records
// from a previous run are never overwritten.
func (o *Outbox) MaxSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// ScanPending visits NEW and SENT records in sequence order. SENT
// records show up again so a crashed broadcaster resends them.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	return o.scan(func(rec *Record) error {
		if rec.State == StateAcked {
			return nil
		}
		return fn(rec)
	})
}

// PruneAcked deletes delivered records; called by the broadcaster
// after each pass to keep the outbox bounded by in-flight events.
func (o *Outbox) PruneAcked() error {
	var acked []uint64
	if err := o.scan(func(rec *Record) error {
		if rec.State == StateAcked {
			acked = append(acked, rec.Seq)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, seq := range acked {
		if err := o.db.Delete(keyFor(seq), pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outbox) scan(fn func(*Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeValue(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) update(seq uint64, mutate func(*Record)) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	mutate(&rec)
	return o.db.Set(keyFor(seq), encodeValue(rec), pebble.Sync)
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(b), "trade/%d", &seq); err != nil {
		return 0, fmt.Errorf("exit: bad outbox key %q: %w", b, err)
	}
	return seq, nil
}
