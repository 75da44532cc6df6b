package registry

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

// ErrAlreadyMounted is returned by Register when the device id is
// already present in the registry.
const ErrAlreadyMounted sentinelError = "registry: device already mounted"
