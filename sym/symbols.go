// Package sym defines the symbols attached to log lines as the "symbol" field.
// They are stable across CLI output and logs.
package sym

// Glyph string constants.
const (
	Pulse      = "꩜" // queue workers, scheduler ticks
	PulseOpen  = "✿" // graceful startup with orphaned message recovery
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
	AM         = "≡" // configuration
	Job        = "⋔" // fan-out job lifecycle (dispatch, counter, chaining)
)

// All returns every symbol keyed by its name.
func All() map[string]string {
	return map[string]string{
		"pulse":       Pulse,
		"pulse_open":  PulseOpen,
		"pulse_close": PulseClose,
		"db":          DB,
		"am":          AM,
		"job":         Job,
	}
}
