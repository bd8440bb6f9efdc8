package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeConvertRun = "run:convert"

type ConvertRunPayload struct {
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewConvertRunTask(payload ConvertRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal convert payload: %w", err)
	}
	return asynq.NewTask(TypeConvertRun, body), nil
}

func ParseConvertRunPayload(task *asynq.Task) (ConvertRunPayload, error) {
	var payload ConvertRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConvertRunPayload{}, fmt.Errorf("unmarshal convert payload: %w", err)
	}
	return payload, nil
}
