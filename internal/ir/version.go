package ir

// Version constants for records and the binary.
const (
	// SchemaVersion is the record schema version embedded in receipts.
	SchemaVersion = "1"

	// EngineVersion is the SwapGraph engine version.
	EngineVersion = "0.1.0"
)
