package ir

// Version constants for the recording format and engine.
const (
	// FormatVersion is the recording line format version.
	FormatVersion = "1"

	// EngineVersion is the anchor engine version.
	EngineVersion = "0.1.0"
)
