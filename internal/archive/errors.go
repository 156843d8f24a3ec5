package archive

import "errors"

var (
	// ErrRemoteUnavailable marks a transient fetch fault for a single id
	// (timeout, connection error, server error). It is never run-fatal.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrAbsent reports that the remote API has no record for an id. It is not
	// a failure; the pipeline turns it into an Absent outcome.
	ErrAbsent = errors.New("record absent")

	// ErrMalformedRecord marks a payload that cannot be mapped onto Item.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrRecordRejected marks a per-record storage fault such as a constraint
	// violation. The record is counted as failed and the run continues.
	ErrRecordRejected = errors.New("record rejected by storage")

	// ErrStorageFault marks a connection-level storage fault. It aborts
	// streaming, but the writer still finalizes before reporting it.
	ErrStorageFault = errors.New("storage fault")
)
