package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cwkeyer/config"
	"github.com/arloliu/cwkeyer/format"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/timeline"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()

	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// run executes the root command and returns its stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestTimingCommand(t *testing.T) {
	g := newGolden(t)

	out, _, err := run(t, "timing", "--wpm", "25")
	require.NoError(t, err)
	g.Assert(t, "timing_text", []byte(out))

	out, _, err = run(t, "timing", "--wpm", "25", "--format", "json")
	require.NoError(t, err)
	g.Assert(t, "timing_json", []byte(out))

	_, _, err = run(t, "timing", "--wpm", "200")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := run(t, "timing", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSimulateCommand(t *testing.T) {
	out, _, err := run(t, "simulate", "--text", "paris", "--wpm", "25", "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	var res SimulateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "PARIS", res.Text)
	assert.Equal(t, "PARIS", res.Decoded)
	assert.True(t, res.Match)
	assert.Equal(t, "paddles", res.Input)
	assert.Equal(t, uint32(25), res.WPM)
	assert.Equal(t, "B", res.Mode)
	assert.Equal(t, 14, res.Elements, "P . - - . A . - R . - . I . . S . . .")
	assert.Equal(t, int64(22*48_000), res.KeyDownUs)
	assert.Zero(t, res.Faults)
	assert.Positive(t, res.CompressedTicks)
	assert.Nil(t, res.Record)
}

func TestSimulateStraightKey(t *testing.T) {
	res, err := Simulate(context.Background(), SimulateOptions{Text: "73", WPM: 18, Straight: true}, discardLogger())
	require.NoError(t, err)
	assert.True(t, res.Match, "decoded %q", res.Decoded)
	assert.Equal(t, "straight key", res.Input)
	assert.Equal(t, 10, res.Elements)
}

func TestRunCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("iambic:\n  wpm: 60\nlog:\n  level: error\n"), 0o600))

	out, _, err := run(t, "run", "--text", "E", "--config", path, "--format", "json")
	require.NoError(t, err)

	var res RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "E", res.Text)
	assert.Equal(t, uint32(60), res.WPM)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Positive(t, res.Steps)
}

func TestSimulateUnknownCharacter(t *testing.T) {
	_, _, err := run(t, "simulate", "--text", "€")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulateRecordThenInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paris.cwt")

	out, _, err := run(t, "simulate", "--record", path, "--compression", "lz4", "--encoding", "raw", "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	var res SimulateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Record)
	assert.Equal(t, path, res.Record.Path)
	assert.Positive(t, res.Record.Records)

	out, _, err = run(t, "timeline", "inspect", path, "--samples", "3", "--format", "json")
	require.NoError(t, err)

	var info InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "LZ4", info.Compression)
	assert.Equal(t, "Raw", info.Encoding)
	assert.Equal(t, "1ms", info.TickPeriod)
	assert.Equal(t, res.Record.Records, info.Records)
	assert.Equal(t, res.Ticks, info.TotalTicks)
	assert.Equal(t, uint64(res.KeyDownUs/1000), info.KeyDownTicks)
	assert.Len(t, info.Samples, 3)

	_, _, err = run(t, "timeline", "inspect", filepath.Join(t.TempDir(), "missing.cwt"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := filepath.Join(t.TempDir(), "bad.cwt")
	require.NoError(t, os.WriteFile(bad, []byte("not a timeline"), 0o600))
	_, _, err = run(t, "timeline", "inspect", bad)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInspectText(t *testing.T) {
	enc, err := timeline.NewEncoder(100,
		timeline.WithSessionID(uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")),
		timeline.WithStartTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		timeline.WithTickPeriod(time.Millisecond),
		timeline.WithEncoding(format.TypeRaw),
		timeline.WithCompression(format.CompressionNone),
	)
	require.NoError(t, err)

	gap, err := sample.Silence(10)
	require.NoError(t, err)
	for _, s := range []sample.Sample{
		sample.Concrete(sample.GpioStraight, true, false),
		sample.Concrete(sample.GpioStraight, true, false),
		gap,
		sample.Concrete(0, false, false),
	} {
		require.NoError(t, enc.Write(s))
	}
	data, _, err := enc.Finish()
	require.NoError(t, err)

	res, err := Inspect("session.cwt", data, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Samples)

	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}
	require.NoError(t, f.Print(res))
	newGolden(t).Assert(t, "timeline_inspect_text", buf.Bytes())

	all, err := Inspect("session.cwt", data, -1)
	require.NoError(t, err)
	require.Len(t, all.Samples, 4)
	assert.Contains(t, all.Samples[0], "     100  ")
	assert.Contains(t, all.Samples[3], "     103  ")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("iambic:\n  wpm: 30\n  mode: A\n"), 0o600))
	goodTOML := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(goodTOML, []byte("[iambic]\nwpm = 18\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("iambic:\n  wpm: 300\n"), 0o600))

	out, _, err := run(t, "config", "validate", good, goodTOML)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+good+": 30 WPM, mode A")
	assert.Contains(t, out, "✓ "+goodTOML+": 18 WPM, mode B")

	out, _, err = run(t, "config", "validate", good, bad, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res ValidateResults
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Files, 2)
	assert.True(t, res.Files[0].Valid)
	assert.False(t, res.Files[1].Valid)
	assert.Contains(t, res.Files[1].Error, "wpm")
}

func TestConfigShowRoundTrip(t *testing.T) {
	for _, as := range []config.Format{config.FormatYAML, config.FormatTOML} {
		t.Run(string(as), func(t *testing.T) {
			out, _, err := run(t, "config", "show", "--as", string(as))
			require.NoError(t, err)

			k, err := config.Parse([]byte(out), as)
			require.NoError(t, err)
			assert.Equal(t, config.Default(), k)
		})
	}

	_, _, err := run(t, "config", "show", "--as", "ini")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPresetCommands(t *testing.T) {
	g := newGolden(t)
	db := filepath.Join(t.TempDir(), "presets.db")

	out, _, err := run(t, "preset", "list", "--db", db)
	require.NoError(t, err)
	g.Assert(t, "preset_list_text", []byte(out))

	out, _, err = run(t, "preset", "save", "--db", db,
		"--slot", "4", "--name", "Field Day", "--wpm", "30", "--mode", "A", "--memory", "dit", "--activate")
	require.NoError(t, err)
	g.Assert(t, "preset_save_text", []byte(out))

	// persisted across invocations
	out, _, err = run(t, "preset", "list", "--db", db, "--format", "json")
	require.NoError(t, err)
	var list PresetList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Presets, 10)
	assert.Equal(t, PresetRow{
		Slot: 4, Active: true, Name: "Field Day", WPM: 30,
		Mode: "A", Memory: "dit", Squeeze: "latch-off", Window: "0-100%",
	}, list.Presets[4])
	assert.False(t, list.Presets[0].Active)

	out, _, err = run(t, "preset", "reset", "--db", db, "--slot", "4", "--format", "json")
	require.NoError(t, err)
	list = PresetList{}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Empty(t, list.Presets[4].Name)
	assert.Equal(t, uint32(25), list.Presets[4].WPM)

	_, _, err = run(t, "preset", "save", "--db", db, "--slot", "12")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = run(t, "preset", "save", "--db", db, "--slot", "1", "--memory", "all")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	lc := config.Default().Log
	lc.Format = "json"

	logger, closer, err := newLogger(&RootOptions{LogLevel: "warn"}, lc, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	path := filepath.Join(t.TempDir(), "keyer.log")
	logger, closer, err = newLogger(&RootOptions{LogFile: path}, config.Default().Log, &buf)
	require.NoError(t, err)
	logger.Error("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	_, _, err = newLogger(&RootOptions{LogLevel: "loud"}, config.Default().Log, &buf)
	require.Error(t, err)
}
