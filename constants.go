package univsig

// Version constants
const (
	// Version is the module version
	Version = "1.0.0"

	// ServiceName identifies the facilitator in logs and /health responses
	ServiceName = "univsig-facilitator"
)
