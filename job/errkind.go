package job

// ErrorKind classifies the reason a Job reached a terminal failure or
// cancellation. The string values are stable wire identifiers (spec §6).
type ErrorKind string

const (
	// ErrorKindNone is the zero value, used on non-terminal or
	// successful jobs.
	ErrorKindNone ErrorKind = ""

	// ErrorKindInvalidSpec indicates the shootout failed validation
	// deep inside the render engine rather than at Admission time.
	ErrorKindInvalidSpec ErrorKind = "invalid_spec"

	// ErrorKindAuth indicates a permanent credential failure
	// (AuthPermanent) while resolving model artifacts.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindModelFetch indicates a permanent failure fetching a
	// model artifact from the registry (404/403).
	ErrorKindModelFetch ErrorKind = "model_fetch"

	// ErrorKindRender indicates a permanent render engine failure.
	ErrorKindRender ErrorKind = "render"

	// ErrorKindTimeout indicates the job exceeded its wall-clock
	// ceiling while Running. The progress-silence watchdog is a
	// separate, non-terminal mechanism: it force-nacks a stalled
	// Running job back to Queued rather than failing it, so it never
	// produces this error kind.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindCancelled indicates a user or operator cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindInternal indicates an unclassified or invariant-violating
	// failure.
	ErrorKindInternal ErrorKind = "internal"
)

// String returns the canonical wire value of the error kind.
func (k ErrorKind) String() string {
	return string(k)
}
