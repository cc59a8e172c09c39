package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime Errors (R001-R099)
	// ============================================

	"R000": {
		Category: CategoryRuntime,
		Message:  "Unexpected error",
		Detail:   "The error did not come from a known resync component.",
	},
	"R001": {
		Category:   CategoryRuntime,
		Message:    "Re-entrant effect call",
		Detail:     "Activate, Reevaluate or Dispose was called while the same effect was already running setup or teardown, or from a second goroutine.",
		Suggestion: "Drive each effect from a single loop and never call back into it from setup or teardown",
	},
	"R002": {
		Category: CategoryRuntime,
		Message:  "Effect disposed",
		Detail:   "The effect has already run its final teardown and cannot start another session.",
	},
	"R003": {
		Category:   CategoryRuntime,
		Message:    "Effect not active",
		Detail:     "Reevaluate was called before the first Activate.",
		Suggestion: "Call Activate with the inputs of the first pass",
	},
	"R004": {
		Category: CategoryRuntime,
		Message:  "Effect already active",
		Detail:   "Activate was called twice. Later passes must use Reevaluate.",
	},
	"R005": {
		Category:   CategoryRuntime,
		Message:    "Pass budget exceeded",
		Detail:     "The host kept scheduling new passes. An effect probably updates state that one of its own inputs depends on, creating a render loop.",
		Suggestion: "Depend on primitive fields instead of objects rebuilt every pass, or move the update into an event handler",
	},
	"R006": {
		Category:   CategoryRuntime,
		Message:    "Hook order changed",
		Detail:     "A component called a different number or kind of hooks than on its first pass.",
		Suggestion: "Call hooks unconditionally and in the same order on every pass",
	},
	"R007": {
		Category: CategoryRuntime,
		Message:  "Instance unmounted",
		Detail:   "An update was dispatched to an instance that is no longer mounted.",
	},
	"R008": {
		Category: CategoryRuntime,
		Message:  "Flush in progress",
		Detail:   "Flush was called while another Flush on the same host was running.",
	},
	"R009": {
		Category: CategoryRuntime,
		Message:  "Host closed",
		Detail:   "The host has been closed and cannot mount or flush.",
	},

	// ============================================
	// Dependency Errors (R100-R199)
	// ============================================

	"R101": {
		Category:   CategoryDependency,
		Message:    "Dependency list changed arity",
		Detail:     "An effect's input list changed length or shape between passes. Lists must have the same positions on every pass.",
		Suggestion: "Keep the input list literal and list every reactive value the setup reads",
	},
	"R102": {
		Category:   CategoryDependency,
		Message:    "Stable input changed",
		Detail:     "A value declared stable with Const was different on this pass.",
		Suggestion: "Track the value with Track or RefOf instead of Const",
	},

	// ============================================
	// Scenario Errors (R200-R299)
	// ============================================

	"R201": {
		Category: CategoryScenario,
		Message:  "Invalid scenario",
		Detail:   "The scenario names unknown effects, uses an unknown dependency mode or has malformed inputs.",
	},
	"R202": {
		Category:   CategoryScenario,
		Message:    "Malformed scenario file",
		Detail:     "The scenario file is not valid YAML or contains unknown fields.",
		Suggestion: "Check field names against the scenario format: name, description, effects, passes, expect",
	},
	"R203": {
		Category:   CategoryScenario,
		Message:    "Unknown built-in scenario",
		Suggestion: "Run 'resync list' to see the built-in scenarios",
	},
	"R204": {
		Category: CategoryScenario,
		Message:  "Scenario expectations failed",
		Detail:   "The call log did not match the scenario's expect block.",
	},

	// ============================================
	// Config Errors (R300-R399)
	// ============================================

	"R301": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "resync.json contains an invalid value.",
	},
	"R302": {
		Category:   CategoryConfig,
		Message:    "Malformed configuration file",
		Detail:     "resync.json is not valid JSON.",
		Suggestion: "Check for trailing commas and unquoted keys",
	},
	"R303": {
		Category: CategoryConfig,
		Message:  "Report not found",
		Detail:   "The archive has no report with that name.",
	},
	"R305": {
		Category:   CategoryConfig,
		Message:    "Configuration not found",
		Suggestion: "Run 'resync init' to write a default resync.json, or run without one to use defaults",
	},
	"R304": {
		Category:   CategoryConfig,
		Message:    "Archive unavailable",
		Detail:     "The report archive could not be opened or written.",
		Suggestion: "Check archive.backend and its directory or bucket settings",
	},

	// ============================================
	// CLI Errors (R400-R499)
	// ============================================

	"R401": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
	"R402": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The inspector server stopped with an error.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
