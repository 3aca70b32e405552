package protocol

const (
	// Route planning results.
	ErrEmptyScan      = "E_EMPTY_SCAN"
	ErrStartUnplaced  = "E_START_UNPLACED"
	ErrNoRoute        = "E_NO_ROUTE"
	ErrBudgetExceeded = "E_BUDGET_EXCEEDED"

	// Tool/transport layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrUnknownTool = "E_UNKNOWN_TOOL"
	ErrUpstream    = "E_UPSTREAM"
	ErrUnavailable = "E_UNAVAILABLE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrEmptyScan:      {},
	ErrStartUnplaced:  {},
	ErrNoRoute:        {},
	ErrBudgetExceeded: {},
	ErrBadRequest:     {},
	ErrUnknownTool:    {},
	ErrUpstream:       {},
	ErrUnavailable:    {},
	ErrInternal:       {},
}

// IsKnownCode reports whether code belongs to the fixed taxonomy. The empty
// code means success and is always known.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
