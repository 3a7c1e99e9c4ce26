package runner

// State is the batch runner's position in its processing loop. It is
// exposed mainly for logging; transitions are driven entirely by Run.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateClassifying
	StateApplying
	StateCheckpointing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateApplying:
		return "applying"
	case StateCheckpointing:
		return "checkpointing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
