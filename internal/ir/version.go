package ir

// Version constants for the rule IR and the tool.
const (
	// IRVersion is the compiled rule schema version.
	IRVersion = "1"

	// ToolVersion is the ruleassert version.
	ToolVersion = "0.1.0"
)
