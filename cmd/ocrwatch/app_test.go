package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ocr-watch/internal/events"
	"github.com/phrazzld/ocr-watch/internal/platform/logger"
	"github.com/phrazzld/ocr-watch/internal/platform/ocrapi"
	"github.com/phrazzld/ocr-watch/internal/task"
	"github.com/phrazzld/ocr-watch/internal/testutils/fakeocr"
)

// These tests replace the default slog logger through logger.Setup, so they
// do not run in parallel.

func writeConfig(t *testing.T, baseURL string, maxFailures int) string {
	t.Helper()
	content := fmt.Sprintf(`api:
  base_url: %s
  timeout: 2s
poll:
  interval: 5ms
  max_consecutive_failures: %d
log:
  level: debug
  format: json
`, baseURL, maxFailures)

	path := filepath.Join(t.TempDir(), "ocrwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runApp(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	stdout, stderr := &logger.TestLogBuffer{}, &logger.TestLogBuffer{}
	code := run(ctx, args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func runningBody(taskID string) map[string]any {
	body := fakeocr.Status(taskID, "running")
	body["progress"] = fakeocr.Progress(1, 4, 25, "Processing page 1/4")
	return body
}

func TestRun_WatchTaskToSuccessAndReadHistory(t *testing.T) {
	srv := fakeocr.New(t)
	srv.Script("T1", fakeocr.OK(runningBody("T1")), fakeocr.OK(fakeocr.Succeeded("T1")))
	cfg := writeConfig(t, srv.URL(), 0)
	journal := filepath.Join(t.TempDir(), "journal.db")

	code, out, _ := runApp(t, context.Background(), "--config", cfg, "--task", "T1", "--journal", journal)
	require.Equal(t, exitSucceeded, code, out)

	got := lines(out)
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, "T1 running 25.0% (1/4) Processing page 1/4", got[0])
	assert.Equal(t, "T1 completed elapsed 12.0 s", got[1])
	assert.Contains(t, out, "  markdown "+srv.URL()+"/api/tasks/T1/download/result.md")
	assert.Contains(t, out, "  archive  "+srv.URL()+"/api/tasks/T1/download/result.zip")
	assert.Contains(t, out, "  1 page(s)")
	assert.Equal(t, 2, srv.StatusCalls("T1"))

	code, out, _ = runApp(t, context.Background(), "--config", cfg, "--history", "T1", "--journal", journal)
	require.Equal(t, exitSucceeded, code)
	history := lines(out)
	require.Len(t, history, 2)
	assert.Contains(t, history[0], "gen=")
	assert.Contains(t, history[0], "T1 running 25.0%")
	assert.Contains(t, history[1], "T1 completed")

	code, out, _ = runApp(t, context.Background(), "--config", cfg, "-j", journal, "--history", "nope")
	require.Equal(t, exitSucceeded, code)
	assert.Equal(t, []string{"no observations recorded for task nope", "known tasks: T1"}, lines(out))
}

func TestRun_TaskFailed(t *testing.T) {
	srv := fakeocr.New(t)
	srv.Script("T2", fakeocr.OK(fakeocr.Failed("T2", "CUDA out of memory")))
	cfg := writeConfig(t, srv.URL(), 0)

	code, out, _ := runApp(t, context.Background(), "-c", cfg, "-t", "T2")
	assert.Equal(t, exitTaskFailed, code)
	assert.Contains(t, out, "T2 failed error: CUDA out of memory")
	assert.Contains(t, out, "task T2 failed: CUDA out of memory")
}

func TestRun_PollingAbandoned(t *testing.T) {
	srv := fakeocr.New(t)
	cfg := writeConfig(t, srv.URL(), 3)

	code, out, stderr := runApp(t, context.Background(), "--config", cfg, "--task", "ghost")
	assert.Equal(t, exitAbandoned, code)
	assert.Contains(t, out, "ghost waiting [query failed x1: Task not found]")
	assert.Contains(t, out, "[polling abandoned]")
	assert.Contains(t, out, "polling abandoned: 3 consecutive query failures")
	assert.Contains(t, stderr, "status query failed")
	assert.Equal(t, 3, srv.StatusCalls("ghost"))
}

func TestRun_SubmitPDF(t *testing.T) {
	srv := fakeocr.New(t)
	srv.NextTaskID = func() string { return "T9" }
	srv.Script("T9", fakeocr.OK(fakeocr.Succeeded("T9")))
	cfg := writeConfig(t, srv.URL(), 0)

	pdf := filepath.Join(t.TempDir(), "doc.pdf")
	data := []byte("%PDF-1.4 minimal")
	require.NoError(t, os.WriteFile(pdf, data, 0o600))

	code, out, _ := runApp(t, context.Background(), "--config", cfg, "--file", pdf, "--quiet")
	require.Equal(t, exitSucceeded, code, out)

	got := lines(out)
	assert.Equal(t, "submitted doc.pdf as task T9", got[0])
	assert.Equal(t, "T9 completed elapsed 12.0 s", got[1])
	assert.NotContains(t, out, "running")

	subs := srv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "doc.pdf", subs[0].Filename)
	assert.Equal(t, "application/pdf", subs[0].ContentType)
	assert.Equal(t, data, subs[0].Data)
}

func TestRun_SubmitWhileServiceNotReady(t *testing.T) {
	srv := fakeocr.New(t)
	srv.SetHealth(fakeocr.OK(map[string]any{"status": "starting", "model_loaded": false}))
	srv.NextTaskID = func() string { return "T10" }
	srv.Script("T10", fakeocr.OK(fakeocr.Succeeded("T10")))
	cfg := writeConfig(t, srv.URL(), 0)

	pdf := filepath.Join(t.TempDir(), "scan.PDF")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o600))

	code, _, stderr := runApp(t, context.Background(), "--config", cfg, "--file", pdf)
	assert.Equal(t, exitSucceeded, code)
	assert.Contains(t, stderr, "OCR service is not ready")
}

func TestRun_SubmissionRejected(t *testing.T) {
	srv := fakeocr.New(t)
	cfg := writeConfig(t, srv.URL(), 0)
	dir := t.TempDir()

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o600))

	code, _, stderr := runApp(t, context.Background(), "--config", cfg, "--file", notes)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, ocrapi.ErrNotPDF.Error())

	code, _, _ = runApp(t, context.Background(), "--config", cfg, "--file", filepath.Join(dir, "missing.pdf"))
	assert.Equal(t, exitUsage, code)

	assert.Empty(t, srv.Submissions())
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n"), 0o600))
	return path
}

func TestRun_RecogniseImage(t *testing.T) {
	srv := fakeocr.New(t)
	srv.NextTaskID = func() string { return "I1" }
	cfg := writeConfig(t, srv.URL(), 0)
	journal := filepath.Join(t.TempDir(), "journal.db")
	img := writeImage(t, "scan.png")

	code, out, _ := runApp(t, context.Background(), "--config", cfg, "--image", img, "--journal", journal)
	require.Equal(t, exitSucceeded, code, out)

	assert.Equal(t, []string{
		"recognised scan.png in 1.50 s",
		"Invoice 42",
		"2 box(es) on 200x100:",
		"  title      [10 10 110 30] at 5.0%,10.0% size 50.0%x20.0%",
		"  stamp      [150 60 150 90]",
		"task I1 (inspect with: ocrwatch --task I1)",
	}, lines(out))

	subs := srv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "image", subs[0].Field)
	assert.Equal(t, "scan.png", subs[0].Filename)
	assert.Equal(t, "image/png", subs[0].ContentType)

	code, out, _ = runApp(t, context.Background(), "--config", cfg, "--history", "I1", "--journal", journal)
	require.Equal(t, exitSucceeded, code)
	history := lines(out)
	require.Len(t, history, 1)
	assert.Contains(t, history[0], "I1 completed elapsed 1.50 s")

	// the returned id is an ordinary task that --task can follow
	srv.Script("I1", fakeocr.OK(fakeocr.Succeeded("I1")))
	code, out, _ = runApp(t, context.Background(), "--config", cfg, "--task", "I1", "--quiet")
	require.Equal(t, exitSucceeded, code, out)
	assert.Equal(t, 1, srv.StatusCalls("I1"))
}

func TestRun_RecogniseImageQuiet(t *testing.T) {
	srv := fakeocr.New(t)
	cfg := writeConfig(t, srv.URL(), 0)

	code, out, _ := runApp(t, context.Background(), "-c", cfg, "-i", writeImage(t, "photo.JPG"), "-q")
	require.Equal(t, exitSucceeded, code)
	assert.Equal(t, "Invoice 42\n", out)

	subs := srv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "image/jpeg", subs[0].ContentType)
}

func TestRun_RecogniseImageFailures(t *testing.T) {
	srv := fakeocr.New(t)
	cfg := writeConfig(t, srv.URL(), 0)

	code, _, stderr := runApp(t, context.Background(), "--config", cfg, "--image", writeImage(t, "notes.txt"))
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, ocrapi.ErrNotImage.Error())
	assert.Empty(t, srv.Submissions())

	code, _, _ = runApp(t, context.Background(), "--config", cfg, "--image", filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, exitUsage, code)

	srv.SetImageReply(fakeocr.Detail(500, "RuntimeError: engine crashed"))
	code, out, stderr := runApp(t, context.Background(), "--config", cfg, "--image", writeImage(t, "scan.png"))
	assert.Equal(t, exitError, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "image recognition failed: RuntimeError: engine crashed")
}

func TestRun_Interrupted(t *testing.T) {
	srv := fakeocr.New(t)
	srv.Script("T3", fakeocr.OK(runningBody("T3")))
	cfg := writeConfig(t, srv.URL(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for srv.StatusCalls("T3") == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	code, out, _ := runApp(t, ctx, "--config", cfg, "--task", "T3")
	assert.Equal(t, exitInterrupted, code)
	assert.Contains(t, out, "T3: interrupted")
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no mode", args: nil, want: exitUsage},
		{name: "two modes", args: []string{"--task", "T1", "--file", "a.pdf"}, want: exitUsage},
		{name: "image and task", args: []string{"--image", "a.png", "--task", "T1"}, want: exitUsage},
		{name: "blank task", args: []string{"--task", "   "}, want: exitUsage},
		{name: "positional argument", args: []string{"--task", "T1", "extra"}, want: exitUsage},
		{name: "unknown flag", args: []string{"--bogus"}, want: exitUsage},
		{name: "help", args: []string{"--help"}, want: exitSucceeded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runApp(t, context.Background(), tc.args...)
			assert.Equal(t, tc.want, code)
			assert.Contains(t, stderr, "usage: ocrwatch")
		})
	}
}

func TestRun_InvalidConfiguration(t *testing.T) {
	cfg := writeConfig(t, "not a url", 0)

	code, _, stderr := runApp(t, context.Background(), "--config", cfg, "--task", "T1")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "failed to load configuration")
}

func TestRun_HistoryNeedsJournal(t *testing.T) {
	srv := fakeocr.New(t)
	cfg := writeConfig(t, srv.URL(), 0)

	code, _, stderr := runApp(t, context.Background(), "--config", cfg, "--history", "T1")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "--history needs a journal")
}

func TestFormatUpdate(t *testing.T) {
	client, err := ocrapi.New("http://ocr.test")
	require.NoError(t, err)
	app := &application{client: client, loc: time.UTC}

	msg := "Loading model"
	tests := []struct {
		name   string
		update events.Update
		want   string
	}{
		{
			name:   "no snapshot yet",
			update: events.Update{TaskID: "T1", Active: true},
			want:   "T1 waiting",
		},
		{
			name: "pending without progress information",
			update: events.Update{TaskID: "T1", Snapshot: &task.Snapshot{
				TaskID:   "T1",
				Status:   task.StatusPending,
				Progress: &task.Progress{},
			}},
			want: "T1 queued",
		},
		{
			name: "message without counts",
			update: events.Update{TaskID: "T1", Snapshot: &task.Snapshot{
				TaskID:   "T1",
				Status:   task.StatusRunning,
				Progress: &task.Progress{Message: &msg},
			}},
			want: "T1 running 0.0% Loading model",
		},
		{
			name: "stale and abandoned",
			update: events.Update{
				TaskID:              "T1",
				LastError:           "request timed out",
				ConsecutiveFailures: 2,
				Abandoned:           true,
			},
			want: "T1 waiting [query failed x2: request timed out] [polling abandoned]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, app.formatUpdate(tc.update))
		})
	}
}
