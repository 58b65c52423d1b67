package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSequenceStepDue = "sequences.step.due"

type SequenceStepDuePayload struct {
	InstanceID string `json:"instanceId"`
	Position   int    `json:"position"`
}

func NewSequenceStepDueTask(payload SequenceStepDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceStepDue, data), nil
}

func ParseSequenceStepDuePayload(task *asynq.Task) (SequenceStepDuePayload, error) {
	var payload SequenceStepDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SequenceStepDuePayload{}, err
	}
	return payload, nil
}
