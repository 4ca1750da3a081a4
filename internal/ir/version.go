package ir

// Version constants for the config contract and engine.
const (
	// ConfigVersion is the campaign config contract version.
	ConfigVersion = "4"

	// EngineVersion is the salesboost engine version.
	EngineVersion = "4.1.0"
)
