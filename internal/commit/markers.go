package commit

import (
	"time"

	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/wire"
)

// markerRecord builds a bare-header marker record (no credentials, no
// payload) for operations like OVERFLOW that carry no fields.
func markerRecord(op wire.Operation, alignment uint32) []byte {
	rec, err := record.Encode(op, 0, alignment, 1<<20, time.Now(), record.Fields{})
	if err != nil {
		// A bare header padded to alignment always fits any sane
		// commit_size; this only fails if alignment itself is absurd.
		panic(err)
	}
	return rec
}

// markerRecoverRecord builds the RECOVER marker, carrying the dropped
// count as the header's Result field and the accumulated extra space as
// a SIZE payload, per spec §4.5.
func markerRecoverRecord(op wire.Operation, alignment uint32, numDropped int32, extraSpace uint64) []byte {
	rec, err := record.Encode(op, numDropped, alignment, 1<<20, time.Now(), record.Fields{Size: &extraSpace})
	if err != nil {
		panic(err)
	}
	return rec
}
