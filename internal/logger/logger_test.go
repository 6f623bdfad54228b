package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer with colors disabled.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "", "text", false)
	t.Cleanup(func() {
		InitWithWriter(os.Stdout, "INFO", "text", isTerminal(os.Stdout))
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"}, nil},
		{"INFO", []string{"[INFO]", "[WARN]", "[ERROR]"}, []string{"[DEBUG]"}},
		{"WARN", []string{"[WARN]", "[ERROR]"}, []string{"[DEBUG]", "[INFO]"}},
		{"ERROR", []string{"[ERROR]"}, []string{"[DEBUG]", "[INFO]", "[WARN]"}},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DeBuG")
		assert.Equal(t, LevelDebug, GetLevel())
		Debug("block dispatched")
		assert.Contains(t, buf.String(), "block dispatched")
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("WARN")
		SetLevel("VERBOSE")
		assert.Equal(t, LevelWarn, GetLevel())

		Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("takes effect without rebuilding", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("ERROR")
		Info("first")
		SetLevel("INFO")
		Info("second")

		out := buf.String()
		assert.NotContains(t, out, "first")
		assert.Contains(t, out, "second")
	})
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	Info("Block complete", KeyBlobID, "b-1", KeyBlockIdx, 2, Range(200, 299), "note", "two words")

	out := buf.String()
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Block complete`, out)
	assert.Contains(t, out, "blob_id=b-1")
	assert.Contains(t, out, "block_idx=2")
	assert.Contains(t, out, "range=[200,299]")
	assert.Contains(t, out, `note="two words"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTextFormat_Color(t *testing.T) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "INFO", "text", true)
	t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text", false) })

	Warn("slow block", KeyWorker, 3)
	out := buf.String()
	assert.Contains(t, out, colorYellow+"WARN"+colorReset)
	assert.Contains(t, out, colorCyan+"worker"+colorReset+"=3")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")
	SetLevel("INFO")

	Error("Block failed", BlobID("b-7"), Err(errors.New("connection reset")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "Block failed", entry["msg"])
	assert.Equal(t, "b-7", entry[KeyBlobID])
	assert.Equal(t, "connection reset", entry[KeyError])
}

func TestContextFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	lc := NewLogContext("start", "b-42").WithBatch("batch-1")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "Transfer started", KeyBlocks, 3)

	out := buf.String()
	assert.Contains(t, out, "operation=start")
	assert.Contains(t, out, "batch_id=batch-1")
	assert.Contains(t, out, "blob_id=b-42")
	assert.Contains(t, out, "blocks=3")

	t.Run("no context fields", func(t *testing.T) {
		buf.Reset()
		DebugCtx(context.Background(), "plain")
		assert.NotContains(t, buf.String(), "operation=")
	})

	t.Run("nil context", func(t *testing.T) {
		assert.Nil(t, FromContext(nil)) //nolint:staticcheck
		var nilCtx *LogContext
		assert.Nil(t, nilCtx.WithBatch("x"))
		assert.Zero(t, nilCtx.DurationMs())
	})
}

func TestWithGroupAndAttrs(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	With(KeyStoreType, "badger").WithGroup("s3").Info("opened", "bucket", "media")

	out := buf.String()
	assert.Contains(t, out, "store_type=badger")
	assert.Contains(t, out, "s3.bucket=media")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestInit_File(t *testing.T) {
	path := t.TempDir() + "/blobxfer.log"
	require.NoError(t, Init(Config{Level: "INFO", Format: "json", Output: path}))
	t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text", false) })

	Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
}

func TestConcurrentLogging(t *testing.T) {
	t.Run("one line per record", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		const goroutines = 10
		const perGoroutine = 100

		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < perGoroutine; j++ {
					Info("block done", KeyWorker, id, KeyBlockIdx, j)
				}
			}(i)
		}
		wg.Wait()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Len(t, lines, goroutines*perGoroutine)
	})

	t.Run("level changes while logging", func(t *testing.T) {
		InitWithWriter(io.Discard, "DEBUG", "text", false)
		t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text", false) })

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if j%2 == 0 {
						SetLevel("DEBUG")
					} else {
						SetLevel("ERROR")
					}
				}
			}()
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					Debug("debug", KeyWorker, id)
					Error("error", KeyWorker, id)
				}
			}(i)
		}
		require.NotPanics(t, wg.Wait)
	})
}
