package job

import (
	"encoding/json"
	"time"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
)

// Event is the per-prison payload of a job message.
// Implemented by PrisonCodeEvent and AttendanceEvent only.
type Event interface {
	Prison() string
	eventType() string
}

const (
	prisonCodeEventType = "PrisonCodeEvent"
	attendanceEventType = "AttendanceEvent"
)

// PrisonCodeEvent addresses a sub-task to a prison.
type PrisonCodeEvent struct {
	PrisonCode string
}

func (e PrisonCodeEvent) Prison() string    { return e.PrisonCode }
func (e PrisonCodeEvent) eventType() string { return prisonCodeEventType }

// AttendanceEvent addresses an attendance sub-task to a prison for a session date.
type AttendanceEvent struct {
	PrisonCode     string
	Date           time.Time
	ExpireUnmarked bool
}

func (e AttendanceEvent) Prison() string    { return e.PrisonCode }
func (e AttendanceEvent) eventType() string { return attendanceEventType }

// JobEventMessage is what the dispatcher sends and a handler receives.
type JobEventMessage struct {
	JobID   int64
	JobType JobType
	Payload Event
}

type wireMessage struct {
	JobID   int64       `json:"jobId"`
	JobType JobType     `json:"jobType"`
	Payload wirePayload `json:"payload"`
}

type wirePayload struct {
	EventType      string `json:"eventType"`
	PrisonCode     string `json:"prisonCode"`
	Date           string `json:"date,omitempty"`
	ExpireUnmarked bool   `json:"expireUnmarked,omitempty"`
}

// MarshalJSON encodes the message with an eventType discriminator on the payload.
func (m JobEventMessage) MarshalJSON() ([]byte, error) {
	w := wireMessage{JobID: m.JobID, JobType: m.JobType}
	switch p := m.Payload.(type) {
	case PrisonCodeEvent:
		w.Payload = wirePayload{EventType: prisonCodeEventType, PrisonCode: p.PrisonCode}
	case AttendanceEvent:
		w.Payload = wirePayload{
			EventType:      attendanceEventType,
			PrisonCode:     p.PrisonCode,
			Date:           util.FormatDate(p.Date),
			ExpireUnmarked: p.ExpireUnmarked,
		}
	default:
		return nil, errors.NewInvalidRequestError("job %d has no payload", m.JobID)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a message and checks its payload variant fits the job type.
func (m *JobEventMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Mark(errors.Wrap(err, "malformed job message"), errors.ErrInvalidRequest)
	}

	jobType, err := ParseJobType(string(w.JobType))
	if err != nil {
		return err
	}
	if w.Payload.PrisonCode == "" {
		return errors.NewInvalidRequestError("job %d message has no prison code", w.JobID)
	}

	var payload Event
	switch w.Payload.EventType {
	case prisonCodeEventType:
		payload = PrisonCodeEvent{PrisonCode: w.Payload.PrisonCode}
	case attendanceEventType:
		date, err := util.ParseDate(w.Payload.Date)
		if err != nil {
			return errors.Mark(err, errors.ErrInvalidRequest)
		}
		payload = AttendanceEvent{PrisonCode: w.Payload.PrisonCode, Date: date, ExpireUnmarked: w.Payload.ExpireUnmarked}
	default:
		return errors.NewInvalidRequestError("unknown event type %q", w.Payload.EventType)
	}

	if jobType.usesAttendanceEvent() != (payload.eventType() == attendanceEventType) {
		return errors.NewInvalidRequestError("%s job cannot carry a %s", jobType, payload.eventType())
	}

	*m = JobEventMessage{JobID: w.JobID, JobType: jobType, Payload: payload}
	return nil
}

// DecodeMessage parses a message payload taken off the transport.
func DecodeMessage(data []byte) (*JobEventMessage, error) {
	var m JobEventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
