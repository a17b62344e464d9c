package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sessionRecording spawns entity 1, pushes it, moves it and despawns it.
const sessionRecording = `{"tick":1,"intents":[{"verb":"Spawn","args":{"pos":[0,0,0]}}],"input_events":[]}
{"tick":2,"intents":[],"input_events":[{"tick":2,"action":"ApplyForce","data":{"entity":1,"impulse":[0,1,0]}}]}
{"tick":3,"intents":[],"input_events":[{"tick":3,"action":"Move","data":{"entity":1,"vel":[0,1,0]}}]}
{"tick":5,"intents":[{"verb":"Despawn","args":{"entity":1}}],"input_events":[]}
`

func writeRecording(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeData unmarshals the data field of a JSON CLIResponse into dst.
func decodeData(t *testing.T, out string, dst any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.NoError(t, json.Unmarshal(resp.Data, dst), out)
	return resp.CLIResponse
}
