package reader

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	// ErrUnknownCommand is returned for a control-channel line that
	// doesn't match commit/clear/userlog.
	ErrUnknownCommand sentinelError = "reader: unknown control command"

	// ErrBadCommand is returned for a recognised command with a malformed
	// argument (missing/extra fields, unparseable count).
	ErrBadCommand sentinelError = "reader: malformed control command"

	// ErrTextTooLong is returned when a userlog command's text exceeds
	// MaxUserlogText bytes.
	ErrTextTooLong sentinelError = "reader: userlog text exceeds 128 bytes"
)
