package validation

// Enum values. These MUST match the CHECK constraints and seed rows of the
// notifications module.
var (
	ValidSeverities = []string{"info", "warning", "critical"}
	ValidChannels   = []string{"in_app", "email", "telegram"}
)
