package followup

import "time"

// Job status constants
const (
	JobStatusPending = "PENDING"
	JobStatusQueued  = "QUEUED"
	JobStatusSending = "SENDING"
	JobStatusFailed  = "FAILED"
)

// Job is one delayed reminder row in the durable store. Delivered jobs are
// deleted, so a row only exists between scheduling and its final outcome.
type Job struct {
	JobID       string    `db:"job_id"`
	Phone       string    `db:"phone"`
	ContactName string    `db:"contact_name"`
	Step        string    `db:"step"`
	Variant     int       `db:"variant"`
	Status      string    `db:"status"`
	FireAt      time.Time `db:"fire_at"`
	ErrorMsg    string    `db:"error_message"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// QueueMessage is the payload published to RabbitMQ when a job comes due.
// Workers re-read the row by id, so the message carries nothing else.
type QueueMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
