package reader

import (
	"context"

	"github.com/gladserv/shallfs/internal/commit"
	"github.com/gladserv/shallfs/internal/record"
)

// Reader drains decoded records from a commit.Engine for one consumer.
// It is safe for a single goroutine to call Drain repeatedly; the
// underlying engine serializes access from multiple readers itself.
type Reader struct {
	eng *commit.Engine
}

// New returns a Reader over eng.
func New(eng *commit.Engine) *Reader {
	return &Reader{eng: eng}
}

// Drain decodes and returns every currently-available record -- the
// on-device committed backlog plus the commit engine's unflushed buffer
// tail -- waiting for at least one to become available unless ctx is
// cancelled first. It returns as many whole records as fit in a pooled
// scratch buffer per call; a larger backlog takes several calls. Once
// the backlog is empty, the next call waits for new records (or for ctx
// cancellation, returning its error) rather than returning zero records.
func (r *Reader) Drain(ctx context.Context) ([]*record.Record, error) {
	if err := r.eng.WaitData(ctx); err != nil {
		return nil, err
	}

	buf := getBuffer(size64k)
	defer putBuffer(buf)

	n, err := r.eng.ReadRecords(buf)
	if err != nil {
		return nil, err
	}

	var out []*record.Record
	off := 0
	for off < n {
		rec, consumed, derr := record.Decode(buf[off:n])
		if derr != nil {
			break
		}
		out = append(out, rec)
		off += consumed
	}
	return out, nil
}

// Discard skips up to maxBytes of committed records without decoding
// them, implementing the "clear <N>" admin command's underlying logic.
func (r *Reader) Discard(maxBytes uint64) (uint64, error) {
	return r.eng.Discard(maxBytes)
}
