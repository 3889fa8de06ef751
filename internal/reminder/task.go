// Package reminder finds appointments that are due a reminder, queues one
// asynq task per appointment and delivers them through a Notifier.
package reminder

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
)

const (
	TypeSendReminder = "reminder:send"
	QueueName        = "reminders"
)

type Payload struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
}

// NewTask builds the delivery task for a. The task id is the appointment id,
// so a reminder that is already queued is never queued twice.
func NewTask(a appointment.Appointment) (*asynq.Task, error) {
	payload, err := json.Marshal(Payload{DoctorID: a.DoctorID, AppointmentID: a.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal reminder payload: %w", err)
	}
	return asynq.NewTask(TypeSendReminder, payload, asynq.TaskID(a.ID.String()), asynq.Queue(QueueName)), nil
}
