package trace

// Request describes one recording session. It is a plain value:
// callers build it once and hand it to the engine unchanged.
type Request struct {
	// Tags selects the capture categories. Duplicates are ignored.
	Tags []string
	// BufferSizeKB is the per-CPU userspace buffer size.
	BufferSizeKB int
	// Apps enables wildcard app tracing.
	Apps bool
	// AttachToBugreport marks the session for bugreport collection.
	AttachToBugreport bool
	// LongTrace streams into the output file while recording.
	LongTrace bool
	// MaxLongTraceSizeMB caps the long-trace file size. Zero means unlimited.
	MaxLongTraceSizeMB int
	// MaxLongTraceDurationMinutes caps the long-trace duration. Zero means unlimited.
	MaxLongTraceDurationMinutes int
}

// Category is one entry of the capture category catalog.
type Category struct {
	Name        string
	Description string
}

// Engine is the capability set a recording backend must provide.
// Callers hold an Engine value rather than a process-wide singleton so
// a fake can stand in during tests.
type Engine interface {
	Name() string
	OutputExtension() string
	TraceStart(req Request) (bool, error)
	StackSampleStart(attachToBugreport bool) (bool, error)
	TraceStop() error
	TraceDump(outPath string) (bool, error)
	IsTracingOn() (bool, error)
	ListCategories() ([]Category, error)
}
