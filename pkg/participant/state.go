package participant

type State string

const (
	StateRecording State = "recording"
	StateDone      State = "done"
)
