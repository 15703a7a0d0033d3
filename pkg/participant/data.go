package participant

import "time"

// Data describes one capture of one participant's speech.
type Data struct {
	Identity string    `json:"identity"`
	Username string    `json:"username"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Output   string    `json:"output"`
}
