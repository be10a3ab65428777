package fault

// Version constants for the persisted schema and the kernel.
const (
	// SchemaVersion is the diagnostic record schema version.
	SchemaVersion = "1"

	// KernelVersion is the vigil kernel version.
	KernelVersion = "0.1.0"
)
