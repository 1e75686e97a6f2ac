package trace

// RecordingType identifies which capture mode produced a recording. It
// is set when a session starts and read when it stops to pick the
// output filename prefix.
type RecordingType int

const (
	RecordingUnknown RecordingType = iota
	RecordingTrace
	RecordingStackSamples
)

// Prefix returns the output filename prefix for the recording type.
func (t RecordingType) Prefix() string {
	switch t {
	case RecordingTrace:
		return "trace"
	case RecordingStackSamples:
		return "stack-samples"
	default:
		return "recording"
	}
}

func (t RecordingType) String() string {
	switch t {
	case RecordingTrace:
		return "trace"
	case RecordingStackSamples:
		return "stack_samples"
	default:
		return "unknown"
	}
}

// ParseRecordingType maps a stored string back to a RecordingType.
// Unrecognized values come back as RecordingUnknown.
func ParseRecordingType(value string) RecordingType {
	switch value {
	case "trace":
		return RecordingTrace
	case "stack_samples":
		return RecordingStackSamples
	default:
		return RecordingUnknown
	}
}
