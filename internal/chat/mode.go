package chat

// Mode selects the response-generation strategy for a chat request.
// The set is closed; dispatch is one function per variant converging on a
// common outcome type.
type Mode string

const (
	// ModeNone sends the windowed history straight to the inference service.
	ModeNone Mode = "none"

	// ModeInternet returns rendered search results without inference.
	ModeInternet Mode = "internet"

	// ModeAuto runs the bounded reason-act agent loop, falling back to
	// ModeNone on any loop failure.
	ModeAuto Mode = "auto"
)

// ParseMode maps a request's mode field onto the closed variant set.
// Unknown or missing values select ModeNone.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeInternet:
		return ModeInternet
	case ModeAuto:
		return ModeAuto
	default:
		return ModeNone
	}
}
