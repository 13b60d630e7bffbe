package simulator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessState_JSONRoundTrip(t *testing.T) {
	for _, ps := range []ProcessState{ProcessReady, ProcessRunning, ProcessWaiting, ProcessTerminated} {
		t.Run(ps.String(), func(t *testing.T) {
			data, err := json.Marshal(ps)
			require.NoError(t, err)
			require.JSONEq(t, `"`+ps.String()+`"`, string(data))

			var decoded ProcessState
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Equal(t, ps, decoded)
		})
	}

	var ps ProcessState
	require.Error(t, json.Unmarshal([]byte(`"sleeping"`), &ps))
	require.Error(t, json.Unmarshal([]byte(`3`), &ps))
}

func TestResult_JSONRoundTrip(t *testing.T) {
	result, err := Simulate(DefaultConfig())
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, result.FinalClock, decoded.FinalClock)
	require.Equal(t, result.Trace, decoded.Trace)
	require.Equal(t, result.Processes, decoded.Processes)
	require.Equal(t, result.Metrics, decoded.Metrics)
	for _, p := range decoded.Processes {
		require.Equal(t, ProcessTerminated, p.State, "process %d", p.ID)
	}
}
