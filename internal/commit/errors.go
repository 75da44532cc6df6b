package commit

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	// ErrTooBig is returned when a caller hands Append a record longer
	// than commitSize; the caller (internal/record's TOO_BIG marker path)
	// should have substituted a marker before reaching here.
	ErrTooBig sentinelError = "commit: record exceeds commit buffer size"

	// ErrInterrupted is returned when a blocked Append/WaitData call is
	// cancelled via context before it could complete.
	ErrInterrupted sentinelError = "commit: interrupted"
)
