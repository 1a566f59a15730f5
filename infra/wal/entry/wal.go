package entry

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

type WAL struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
	lastSeq  uint64
}

// Open appends to dir. A journal from a previous run is preserved:
// writing continues in a fresh segment past the highest existing
// index, and LastSeq reports the highest journaled sequence so the
// writer can keep the sequence strictly increasing across runs.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 2 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	existing, err := filepath.Glob(filepath.Join(cfg.Dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}

	segIndex := 0
	var lastSeq uint64
	if len(existing) > 0 {
		var idx int
		last := filepath.Base(existing[len(existing)-1])
		if _, err := fmt.Sscanf(last, "segment-%d.wal", &idx); err != nil {
			return nil, fmt.Errorf("entry: bad segment name %q: %w", last, err)
		}
		segIndex = idx + 1

		lastSeq, err = Replay(cfg.Dir, func(*Record) error { return nil })
		if err != nil {
			return nil, fmt.Errorf("entry: scanning existing journal: %w", err)
		}
	}

	seg, err := openSegment(cfg.Dir, segIndex)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: segIndex,
		lastSeq:  lastSeq,
	}, nil
}

// LastSeq returns the highest sequence number in the journal,
// including records from previous runs.
func (w *WAL) LastSeq() uint64 { return w.lastSeq }

// Append frames and writes one record:
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// The CRC covers header and payload. Rotation happens after the
// write, so a record never straddles two segments.
func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	buf := make([]byte, 1+8+8+4+payloadLen+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := crcSum(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return err
	}
	w.lastSeq = r.Seq

	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) Sync() error {
	return w.current.sync()
}

func (w *WAL) Close() error {
	return w.current.close()
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}
