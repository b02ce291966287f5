package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/phrazzld/ocr-watch/internal/config"
	"github.com/phrazzld/ocr-watch/internal/events"
	"github.com/phrazzld/ocr-watch/internal/platform/logger"
	"github.com/phrazzld/ocr-watch/internal/platform/ocrapi"
	"github.com/phrazzld/ocr-watch/internal/platform/sqlite"
	"github.com/phrazzld/ocr-watch/internal/poller"
	"github.com/phrazzld/ocr-watch/internal/redact"
	"github.com/phrazzld/ocr-watch/internal/task"
	"github.com/phrazzld/ocr-watch/internal/view"
)

// Exit codes
const (
	exitSucceeded   = 0
	exitTaskFailed  = 1
	exitUsage       = 2
	exitAbandoned   = 3
	exitError       = 4
	exitInterrupted = 130
)

// application holds the wired dependencies of one ocrwatch invocation.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	client  *ocrapi.Client
	journal *sqlite.Journal
	out     io.Writer
	quiet   bool
	loc     *time.Location
}

// run executes ocrwatch with args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitSucceeded
	}
	if err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitUsage
	}

	app, err := newApplication(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitUsage
	}

	if err := app.openJournal(ctx); err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitError
	}
	defer app.cleanup()

	if opts.history != "" {
		return app.printHistory(ctx, opts.history, stderr)
	}
	if opts.image != "" {
		return app.recognise(ctx, opts.image, stderr)
	}

	taskID := opts.taskID
	if opts.file != "" {
		id, code := app.submit(ctx, opts.file, stderr)
		if code != exitSucceeded {
			return code
		}
		taskID = id
	}
	return app.watch(ctx, taskID)
}

// newApplication loads configuration, sets up logging and builds the OCR
// client.
func newApplication(opts *options, stdout, stderr io.Writer) (*application, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.journalPath != "" {
		cfg.Journal.Path = opts.journalPath
	}

	log, err := logger.Setup(cfg.Log, stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"base_url", redact.String(cfg.API.BaseURL),
		"timeout", cfg.API.Timeout,
		"poll_interval", cfg.Poll.Interval,
		"max_consecutive_failures", cfg.Poll.MaxConsecutiveFailures,
		"max_elapsed_without_success", cfg.Poll.MaxElapsedWithoutSuccess,
		"journal_enabled", cfg.Journal.Path != "")

	client, err := ocrapi.New(cfg.API.BaseURL,
		ocrapi.WithTimeout(cfg.API.Timeout),
		ocrapi.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR client: %w", err)
	}

	return &application{
		config: cfg,
		logger: log,
		client: client,
		out:    stdout,
		quiet:  opts.quiet,
		loc:    time.Local,
	}, nil
}

func (app *application) openJournal(ctx context.Context) error {
	if app.config.Journal.Path == "" {
		return nil
	}
	j, err := sqlite.Open(ctx, app.config.Journal.Path, app.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	app.journal = j
	return nil
}

func (app *application) cleanup() {
	if app.journal == nil {
		return
	}
	if err := app.journal.Close(); err != nil {
		app.logger.Error("failed to close journal", "error", err)
	}
}

func (app *application) pollConfig() poller.Config {
	return poller.Config{
		Interval:                 app.config.Poll.Interval,
		MaxConsecutiveFailures:   app.config.Poll.MaxConsecutiveFailures,
		MaxElapsedWithoutSuccess: app.config.Poll.MaxElapsedWithoutSuccess,
	}
}

// checkHealth logs when the service is unreachable or not ready. Uploads go
// ahead either way.
func (app *application) checkHealth(ctx context.Context) {
	if h, err := app.client.Health(ctx); err != nil {
		app.logger.Warn("health check failed", "error", redact.String(task.ErrorMessage(err)))
	} else if !h.Ready() {
		app.logger.Warn("OCR service is not ready, submitting anyway",
			"status", h.Status,
			"model_loaded", h.ModelLoaded)
	}
}

func (app *application) closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		app.logger.Warn("failed to close document", "error", err)
	}
}

// submit uploads the PDF at path and returns the new task id.
func (app *application) submit(ctx context.Context, path string, stderr io.Writer) (string, int) {
	app.checkHealth(ctx)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return "", exitUsage
	}
	defer app.closeFile(f)

	name := filepath.Base(path)
	taskID, err := app.client.SubmitPDF(ctx, name, f)
	switch {
	case err == nil:
	case errors.Is(err, ocrapi.ErrNotPDF):
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return "", exitUsage
	case ctx.Err() != nil:
		fmt.Fprintln(stderr, "ocrwatch: interrupted")
		return "", exitInterrupted
	default:
		fmt.Fprintf(stderr, "ocrwatch: submission failed: %s\n", task.ErrorMessage(err))
		return "", exitError
	}

	fmt.Fprintf(app.out, "submitted %s as task %s\n", name, taskID)
	return taskID, exitSucceeded
}

// recognise runs synchronous OCR on the image at path and prints the text,
// the detected boxes and the id of the finished task.
func (app *application) recognise(ctx context.Context, path string, stderr io.Writer) int {
	app.checkHealth(ctx)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitUsage
	}
	defer app.closeFile(f)

	name := filepath.Base(path)
	res, err := app.client.OCRImage(ctx, name, f)
	switch {
	case err == nil:
	case errors.Is(err, ocrapi.ErrNotImage):
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitUsage
	case ctx.Err() != nil:
		fmt.Fprintln(stderr, "ocrwatch: interrupted")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "ocrwatch: image recognition failed: %s\n", task.ErrorMessage(err))
		return exitError
	}

	if app.journal != nil && res.TaskID != "" {
		if err := app.journal.Record(ctx, app.imageUpdate(res)); err != nil {
			app.logger.Warn("failed to journal image result", "task_id", res.TaskID, "error", err)
		}
	}

	if !app.quiet {
		fmt.Fprintf(app.out, "recognised %s in %s\n", name, view.ElapsedLabel(res.Duration()))
	}
	fmt.Fprintln(app.out, res.Text)
	if app.quiet {
		return exitSucceeded
	}

	app.printBoxes(res)
	if res.TaskID != "" {
		fmt.Fprintf(app.out, "task %s (inspect with: ocrwatch --task %s)\n", res.TaskID, res.TaskID)
	}
	return exitSucceeded
}

// printBoxes lists every detected box in pixels, followed by its placement
// on the image when the image dimensions are known.
func (app *application) printBoxes(res *ocrapi.ImageResult) {
	if len(res.Boxes) == 0 {
		return
	}

	placed := make(map[string]view.BoxRegion)
	if res.ImageDims != nil {
		fmt.Fprintf(app.out, "%d box(es) on %dx%d:\n", len(res.Boxes), res.ImageDims.W, res.ImageDims.H)
		for _, r := range view.PreviewBoxes(res.Boxes, res.ImageDims.W, res.ImageDims.H) {
			placed[r.ID] = r
		}
	} else {
		fmt.Fprintf(app.out, "%d box(es):\n", len(res.Boxes))
	}

	for i, b := range res.Boxes {
		line := fmt.Sprintf("  %-10s %v", b.Label, b.Box)
		if r, ok := placed[fmt.Sprintf("%s-%d", b.Label, i)]; ok {
			line += fmt.Sprintf(" at %.1f%%,%.1f%% size %.1f%%x%.1f%%", r.Left, r.Top, r.Width, r.Height)
		}
		fmt.Fprintln(app.out, line)
	}
}

// imageUpdate is the journal entry for a finished image task. The service
// only answers once recognition is done, so the task is recorded as
// succeeded.
func (app *application) imageUpdate(res *ocrapi.ImageResult) events.Update {
	now := time.Now().UTC()
	created, updated := now, now
	if res.Timing != nil {
		if res.Timing.QueuedAt != nil {
			created = *res.Timing.QueuedAt
		}
		if res.Timing.FinishedAt != nil {
			updated = *res.Timing.FinishedAt
		}
	}
	return events.Update{
		TaskID: res.TaskID,
		Snapshot: &task.Snapshot{
			TaskID:    res.TaskID,
			Status:    task.StatusSucceeded,
			TaskType:  task.TypeImage,
			CreatedAt: created,
			UpdatedAt: updated,
			Timing:    res.Timing,
		},
		Attempts:   1,
		ObservedAt: now,
	}
}

// watch follows taskID until it reaches an end state and reports the outcome.
func (app *application) watch(ctx context.Context, taskID string) int {
	watcher := poller.NewWatcher(app.client, app.pollConfig(), app.logger)
	if !app.quiet {
		watcher.Subscribe(events.HandlerFunc(app.printUpdate))
	}
	if app.journal != nil {
		watcher.Subscribe(app.journal)
	}

	p := watcher.Watch(ctx, taskID)
	defer watcher.Clear()

	// The poller ends on its own when ctx is cancelled, so Wait needs no
	// deadline of its own.
	state, err := p.Wait(context.Background())
	return app.report(state, err)
}

func (app *application) printUpdate(_ context.Context, u events.Update) error {
	_, err := fmt.Fprintln(app.out, app.formatUpdate(u))
	return err
}

// formatUpdate renders one update as a single status line.
func (app *application) formatUpdate(u events.Update) string {
	parts := []string{u.TaskID}

	if u.Snapshot == nil {
		parts = append(parts, "waiting")
	} else {
		sum := view.Build(u.Snapshot, app.client.BaseURL(), app.loc)
		parts = append(parts, sum.StatusLabel)
		if sum.ShowProgress {
			parts = append(parts, fmt.Sprintf("%.1f%%", sum.Percent))
			if sum.Total > 0 {
				parts = append(parts, fmt.Sprintf("(%d/%d)", sum.Current, sum.Total))
			}
		}
		if sum.ProgressMessage != "" {
			parts = append(parts, sum.ProgressMessage)
		}
		if sum.Elapsed != view.UnknownDuration {
			parts = append(parts, "elapsed "+sum.Elapsed)
		}
		if sum.ErrorMessage != "" {
			parts = append(parts, "error: "+sum.ErrorMessage)
		}
	}

	if u.Stale() {
		parts = append(parts, fmt.Sprintf("[query failed x%d: %s]", u.ConsecutiveFailures, u.LastError))
	}
	if u.Abandoned {
		parts = append(parts, "[polling abandoned]")
	}
	return strings.Join(parts, " ")
}

// report prints the outcome of a finished poller and maps it to an exit code.
func (app *application) report(state poller.State, err error) int {
	if app.quiet && state.Snapshot != nil {
		fmt.Fprintln(app.out, app.formatUpdate(state.Update(time.Now())))
	}

	var failed *poller.TaskFailedError
	switch {
	case err == nil:
		sum := view.Build(state.Snapshot, app.client.BaseURL(), app.loc)
		for _, a := range sum.Artifacts {
			fmt.Fprintf(app.out, "  %-8s %s\n", a.Kind, a.URL)
		}
		if sum.PageCount > 0 {
			fmt.Fprintf(app.out, "  %d page(s)\n", sum.PageCount)
		}
		return exitSucceeded
	case errors.As(err, &failed):
		fmt.Fprintf(app.out, "%v\n", failed)
		return exitTaskFailed
	case errors.Is(err, poller.ErrPollingAbandoned):
		fmt.Fprintf(app.out, "%s: %v\n", state.TaskID, err)
		return exitAbandoned
	case errors.Is(err, poller.ErrStopped):
		fmt.Fprintf(app.out, "%s: interrupted\n", state.TaskID)
		return exitInterrupted
	}
	fmt.Fprintf(app.out, "%s: %v\n", state.TaskID, err)
	return exitError
}

// printHistory prints the journaled observations of taskID.
func (app *application) printHistory(ctx context.Context, taskID string, stderr io.Writer) int {
	if app.journal == nil {
		fmt.Fprintln(stderr, "ocrwatch: --history needs a journal (--journal or journal.path)")
		return exitUsage
	}

	entries, err := app.journal.History(ctx, taskID)
	if err != nil {
		fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
		return exitError
	}

	if len(entries) == 0 {
		fmt.Fprintf(app.out, "no observations recorded for task %s\n", taskID)
		known, err := app.journal.Tasks(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "ocrwatch: %v\n", err)
			return exitError
		}
		if len(known) > 0 {
			fmt.Fprintf(app.out, "known tasks: %s\n", strings.Join(known, ", "))
		}
		return exitSucceeded
	}

	for _, e := range entries {
		u := events.Update{
			TaskID:              e.TaskID,
			Generation:          e.Generation,
			Snapshot:            e.Snapshot,
			LastError:           e.LastError,
			Active:              e.Active,
			Abandoned:           e.Abandoned,
			ConsecutiveFailures: e.ConsecutiveFailures,
			Attempts:            e.Attempts,
		}
		fmt.Fprintf(app.out, "%s gen=%d %s\n",
			e.ObservedAt.In(app.loc).Format(time.RFC3339),
			e.Generation,
			app.formatUpdate(u))
	}
	return exitSucceeded
}
