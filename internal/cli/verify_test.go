package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/ir"
)

func TestVerify_DeterministicRecording(t *testing.T) {
	path := writeRecording(t, sessionRecording)

	out, err := execute(t, "verify", path, "--format", "json")
	require.NoError(t, err)

	var result VerifyResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Deterministic)
	assert.Equal(t, 4, result.Frames)
	require.Len(t, result.Passes, 2)
	for _, p := range result.Passes {
		assert.True(t, p.Complete)
		assert.Equal(t, uint64(5), p.FinalTick)
		assert.Equal(t, 4, p.FramesReplayed)
	}
	assert.Equal(t, result.Passes[0].ReplayChecksum, result.Passes[1].ReplayChecksum)
}

func TestVerify_TextOutput(t *testing.T) {
	path := writeRecording(t, sessionRecording)

	out, err := execute(t, "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(4 frames)")
	assert.Contains(t, out, "Deterministic: yes")
}

func TestVerify_MalformedRecording(t *testing.T) {
	path := writeRecording(t, sessionRecording+"{\"tick\":6,\"intents\":[{\"args\":{}}]}\n")

	_, err := execute(t, "verify", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "malformed frame")
}

func TestVerify_MissingRecording(t *testing.T) {
	_, err := execute(t, "verify", "does-not-exist.ndjson")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestComparePasses(t *testing.T) {
	a := ReplayPass{Complete: true, ReplayChecksum: "x", checksums: []ir.Checksum{1, 2, 3}}

	tests := []struct {
		name     string
		b        ReplayPass
		wantOK   bool
		wantTick uint64
	}{
		{"identical", ReplayPass{Complete: true, ReplayChecksum: "x", checksums: []ir.Checksum{1, 2, 3}}, true, 0},
		{"diverges at tick 2", ReplayPass{Complete: true, ReplayChecksum: "x", checksums: []ir.Checksum{1, 9, 3}}, false, 2},
		{"shorter", ReplayPass{Complete: true, ReplayChecksum: "x", checksums: []ir.Checksum{1, 2}}, false, 0},
		{"different replay checksum", ReplayPass{Complete: true, ReplayChecksum: "y", checksums: []ir.Checksum{1, 2, 3}}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, tick := comparePasses(a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTick, tick)
		})
	}
}
