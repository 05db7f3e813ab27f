package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingState(t *testing.T) {
	st := NewPendingState(Init{InputFile: "a.jsonl", OutputFile: "a.vec"})
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, "a.jsonl", st.Init.InputFile)
	assert.Nil(t, st.Progress)
	assert.Nil(t, st.Result)
}

func TestStateRoundTrip(t *testing.T) {
	rate := 12.5
	st := &State{
		Status: StatusRunning,
		Init:   &Init{InputFile: "in.jsonl", OutputFile: "out.vec"},
		Progress: &Progress{
			Count: 200,
			Total: 250,
			Rate:  &rate,
		},
	}

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, st.Status, decoded.Status)
	assert.Equal(t, st.Init.InputFile, decoded.Init.InputFile)
	require.NotNil(t, decoded.Progress)
	assert.Equal(t, int64(200), decoded.Progress.Count)
	assert.Equal(t, int64(250), decoded.Progress.Total)
	require.NotNil(t, decoded.Progress.Rate)
	assert.Equal(t, 12.5, *decoded.Progress.Rate)
	assert.Nil(t, decoded.Progress.AvgRate)
}

func TestStatePreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"status":"pending","init":{"input_file":"a","output_file":"b"},"future_field":"keep-me"}`)

	var st State
	require.NoError(t, json.Unmarshal(raw, &st))

	out, err := json.Marshal(&st)
	require.NoError(t, err)

	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, `"keep-me"`, string(roundTripped["future_field"]))
}

func TestStateFinishedFieldsOmittedWhenUnset(t *testing.T) {
	st := NewPendingState(Init{InputFile: "a", OutputFile: "b"})

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var asMap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &asMap))

	_, hasProgress := asMap["progress"]
	_, hasResult := asMap["result"]
	_, hasError := asMap["error"]
	assert.False(t, hasProgress)
	assert.False(t, hasResult)
	assert.False(t, hasError)
}

func TestSetProgressOverwrites(t *testing.T) {
	st := NewPendingState(Init{InputFile: "a", OutputFile: "b"})
	st.SetProgress(Progress{Count: 100, Total: 250})
	st.SetProgress(Progress{Count: 150, Total: 250})

	require.NotNil(t, st.Progress)
	assert.Equal(t, int64(150), st.Progress.Count)
}

func TestSetResult(t *testing.T) {
	st := NewPendingState(Init{InputFile: "a", OutputFile: "b"})
	st.SetResult(250)

	require.NotNil(t, st.Result)
	assert.Equal(t, int64(250), *st.Result)
}
