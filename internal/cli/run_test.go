package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/config"
	"github.com/roach88/anchor/internal/replay"
)

func TestRun_NormalHeadlessStopsAtTickLimit(t *testing.T) {
	out, err := execute(t, "run", "--headless", "--listen", "", "--ticks", "12", "--format", "json")
	require.NoError(t, err)

	var summary RunSummary
	resp := decodeData(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "normal", summary.Mode)
	assert.Equal(t, uint64(12), summary.FinalTick)
	assert.Equal(t, 0, summary.Entities)
	assert.NotEmpty(t, summary.Checksum)
	assert.Empty(t, summary.LedgerRun)
}

func TestRun_ReplayCompletesAndReports(t *testing.T) {
	path := writeRecording(t, sessionRecording)

	out, err := execute(t, "run", "--mode", "replay", "--recording", path,
		"--headless", "--listen", "", "--format", "json")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, "replay", summary.Mode)
	assert.True(t, summary.ReplayComplete)
	assert.Equal(t, uint64(5), summary.FinalTick)
	assert.Equal(t, 4, summary.FramesLoaded)
	assert.Equal(t, 4, summary.FramesReplayed)
	assert.Equal(t, 0, summary.Entities)
	assert.NotEmpty(t, summary.ReplayChecksum)
	assert.True(t, filepath.IsAbs(summary.Recording))
}

func TestRun_RecordThenReplayAgainstLedger(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "empty.ndjson")
	ledger := filepath.Join(dir, "anchor.db")

	out, err := execute(t, "run", "--mode", "record", "--recording", recording,
		"--ledger", ledger, "--headless", "--listen", "", "--ticks", "3", "--format", "json")
	require.NoError(t, err)

	var record RunSummary
	decodeData(t, out, &record)
	assert.Equal(t, "record", record.Mode)
	assert.Equal(t, uint64(3), record.FinalTick)
	// Nothing happened, so nothing was written.
	assert.Equal(t, 0, record.FramesWritten)
	assert.NotEmpty(t, record.LedgerRun)

	data, err := os.ReadFile(recording)
	require.NoError(t, err)
	assert.Empty(t, data)

	out, err = execute(t, "run", "--mode", "replay", "--recording", recording,
		"--ledger", ledger, "--headless", "--listen", "", "--format", "json")
	require.NoError(t, err)

	var rep RunSummary
	decodeData(t, out, &rep)
	assert.True(t, rep.ReplayComplete)
	assert.Equal(t, uint64(1), rep.FinalTick)
	assert.Nil(t, rep.Desync)
	assert.NotEqual(t, record.LedgerRun, rep.LedgerRun)
	assert.Equal(t, record.LedgerRun, rep.LedgerRef, "replay compares against the record run")
	assert.Zero(t, rep.LedgerFailures)
	assert.Empty(t, record.LedgerRef)

	out, err = execute(t, "trace", "--ledger", ledger, "--format", "json")
	require.NoError(t, err)
	var listing TraceResult
	decodeData(t, out, &listing)
	require.Len(t, listing.Runs, 2)
	assert.Equal(t, string(replay.KindRecord), listing.Runs[0].Mode)
	assert.Equal(t, string(replay.KindReplay), listing.Runs[1].Mode)
	assert.True(t, listing.Runs[1].Finished)
	assert.NotEmpty(t, listing.Runs[1].ReplayChecksum)
}

func TestRun_TextSummary(t *testing.T) {
	path := writeRecording(t, sessionRecording)

	out, err := execute(t, "run", "--mode", "replay", "--recording", path, "--headless", "--listen", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Run finished (replay)")
	assert.Contains(t, out, "4 of 4 replayed")
	assert.Contains(t, out, "Replay checksum:")
}

func TestSummaryOutput_LedgerLines(t *testing.T) {
	text, ok := summaryOutput("text", &RunSummary{
		Mode:           string(replay.KindReplay),
		LedgerRun:      "rep-1",
		LedgerRef:      "rec-1",
		LedgerFailures: 2,
	}).(string)
	require.True(t, ok)
	assert.Contains(t, text, "Ledger run: rep-1 (reference rec-1)")
	assert.Contains(t, text, "Ledger rows lost: 2")

	text = summaryOutput("text", &RunSummary{Mode: "normal", LedgerRun: "n-1"}).(string)
	assert.NotContains(t, text, "rows lost")
	assert.NotContains(t, text, "reference")
}

func TestRun_ReplayMissingRecordingIsCommandError(t *testing.T) {
	_, err := execute(t, "run", "--mode", "replay", "--recording",
		filepath.Join(t.TempDir(), "missing.ndjson"), "--headless", "--listen", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_RecordWithoutPathIsCommandError(t *testing.T) {
	_, err := execute(t, "run", "--mode", "record", "--headless", "--listen", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "requires a recording path")
}

func TestRun_MockRenderBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  backend: mock\n"), 0644))

	// mock is accepted and rendered every tick.
	_, err := execute(t, "--config", path, "run", "--headless", "--listen", "", "--ticks", "2")
	require.NoError(t, err)
}

func TestApplyRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--ticks", "9", "--read-only"}))

	opts := &RunOptions{Ticks: 9, ReadOnly: true, Listen: ""}
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:9000"
	cfg.Mode = "normal"
	applyRunFlags(cmd, opts, &cfg)

	assert.Equal(t, uint64(9), cfg.Sim.Ticks)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "normal", cfg.Mode)
}
