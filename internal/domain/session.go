package domain

type TrainingStatus string

const (
	TrainingStatusIdle     TrainingStatus = "idle"
	TrainingStatusTraining TrainingStatus = "training"
	TrainingStatusDone     TrainingStatus = "done"
	TrainingStatusErrored  TrainingStatus = "errored"
	TrainingStatusCanceled TrainingStatus = "canceled"
)

// TrainingSession is the externally visible state of one (bot, language)
// training run.
type TrainingSession struct {
	ID       string         `json:"id,omitempty"`
	BotID    string         `json:"bot_id"`
	Language string         `json:"language"`
	Status   TrainingStatus `json:"status"`
	Progress float64        `json:"progress"`
	Error    string         `json:"error,omitempty"`
}
