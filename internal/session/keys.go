package session

// Action is what a capture-screen key press asks for.
type Action int

const (
	ActionNone Action = iota
	ActionCapture
	ActionRetake
	ActionFinish
	ActionHelp
)

func (a Action) String() string {
	switch a {
	case ActionCapture:
		return "capture"
	case ActionRetake:
		return "retake"
	case ActionFinish:
		return "finish"
	case ActionHelp:
		return "help"
	default:
		return "none"
	}
}

// KeyAction maps a key to a capture action. Keys typed into a focused text
// input never trigger an action.
func KeyAction(key string, inputFocused bool) Action {
	if inputFocused {
		return ActionNone
	}
	switch key {
	case " ", "space":
		return ActionCapture
	case "r", "R":
		return ActionRetake
	case "f", "F":
		return ActionFinish
	case "?":
		return ActionHelp
	default:
		return ActionNone
	}
}
