package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prisonops/lifecycle/errors"
)

func TestParseJobType(t *testing.T) {
	for _, jt := range AllTypes {
		got, err := ParseJobType(string(jt))
		require.NoError(t, err)
		assert.Equal(t, jt, got)
	}

	_, err := ParseJobType("attendance_create")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestJobEventMessage_AttendanceEventWireFormat(t *testing.T) {
	msg := JobEventMessage{
		JobID:   7,
		JobType: AttendanceCreate,
		Payload: AttendanceEvent{PrisonCode: "MDI", Date: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), ExpireUnmarked: true},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jobId": 7,
		"jobType": "ATTENDANCE_CREATE",
		"payload": {"eventType": "AttendanceEvent", "prisonCode": "MDI", "date": "2026-10-17", "expireUnmarked": true}
	}`, string(data))

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, *decoded)
}

func TestJobEventMessage_PrisonCodeEvent(t *testing.T) {
	decoded, err := DecodeMessage([]byte(`{"jobId":3,"jobType":"END_SUSPENSIONS","payload":{"eventType":"PrisonCodeEvent","prisonCode":"LEI"}}`))
	require.NoError(t, err)
	assert.Equal(t, EndSuspensions, decoded.JobType)
	assert.Equal(t, PrisonCodeEvent{PrisonCode: "LEI"}, decoded.Payload)
	assert.Equal(t, "LEI", decoded.Payload.Prison())
}

func TestJobEventMessage_Rejects(t *testing.T) {
	tests := map[string]string{
		"variant does not fit job type": `{"jobId":1,"jobType":"START_SUSPENSIONS","payload":{"eventType":"AttendanceEvent","prisonCode":"MDI","date":"2026-10-17"}}`,
		"attendance job without date":   `{"jobId":1,"jobType":"ATTENDANCE_CREATE","payload":{"eventType":"PrisonCodeEvent","prisonCode":"MDI"}}`,
		"unknown job type":              `{"jobId":1,"jobType":"CLEAN_CELLS","payload":{"eventType":"PrisonCodeEvent","prisonCode":"MDI"}}`,
		"unknown event type":            `{"jobId":1,"jobType":"END_SUSPENSIONS","payload":{"eventType":"Mystery","prisonCode":"MDI"}}`,
		"missing prison":                `{"jobId":1,"jobType":"END_SUSPENSIONS","payload":{"eventType":"PrisonCodeEvent"}}`,
		"bad date":                      `{"jobId":1,"jobType":"ATTENDANCE_CREATE","payload":{"eventType":"AttendanceEvent","prisonCode":"MDI","date":"17/10/2026"}}`,
		"not json":                      `{`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(data))
			require.Error(t, err)
			if name != "not json" {
				assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
			}
		})
	}
}

func TestJobEventMessage_MarshalWithoutPayload(t *testing.T) {
	_, err := json.Marshal(JobEventMessage{JobID: 1, JobType: EndSuspensions})
	assert.Error(t, err)
}
