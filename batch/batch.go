package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ilyLeonOn/meta-aria-uploader/converter"
	"github.com/ilyLeonOn/meta-aria-uploader/history"
	"github.com/ilyLeonOn/meta-aria-uploader/logger"
	"github.com/ilyLeonOn/meta-aria-uploader/uploader"
)

// Mode selects which halves of the pipeline run for a batch.
type Mode string

const (
	ModeConvertUpload Mode = "convert_upload"
	ModeConvertOnly   Mode = "convert_only"
	ModeUploadOnly    Mode = "upload_only"
)

const (
	// DefaultMaxConcurrent bounds simultaneous aria_mps invocations.
	DefaultMaxConcurrent = 2
	// MaxConcurrentWarnThreshold is the soft cap above which we warn.
	MaxConcurrentWarnThreshold = 16

	progressRedrawInterval = 1 * time.Second
	statusSnapshotInterval = 5 * time.Second
)

// Options configures one batch run.
type Options struct {
	Files         []string
	OutputDir     string // empty: outputs land next to each VRS file
	Bucket        string
	FolderPrefix  string
	Mode          Mode
	MaxConcurrent int
}

// Summary reports batch completion counts. Success requires at least one
// uploaded job.
type Summary struct {
	Total     int
	Processed int
	Uploaded  int
	Success   bool
}

// ConvertFunc runs one conversion; it matches converter.Converter.Convert
// so tests can substitute a fake.
type ConvertFunc func(ctx context.Context, vrsFile, outputDir string, progress converter.ProgressFunc) (string, error)

// NotifyFunc receives display-layer updates: a message (may be empty) and
// a percentage (-1 for "no percentage update").
type NotifyFunc func(message string, percentage float64)

// Orchestrator coordinates one batch of VRS jobs: one worker per file,
// conversion bounded by a counting semaphore, statuses aggregated through
// the tracker and surfaced on fixed timers.
type Orchestrator struct {
	opts    Options
	convert ConvertFunc
	up      *uploader.Uploader
	notify  NotifyFunc
	tracker *Tracker
	sem     *semaphore.Weighted
	hist    *history.Store
}

// NewOrchestrator builds an orchestrator. up may be nil for convert-only
// batches; convert may be nil for upload-only batches.
func NewOrchestrator(opts Options, convert ConvertFunc, up *uploader.Uploader, notify NotifyFunc) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxConcurrent > MaxConcurrentWarnThreshold {
		logger.Warnf("Concurrency limit %d exceeds recommended maximum of %d", opts.MaxConcurrent, MaxConcurrentWarnThreshold)
	}
	if notify == nil {
		notify = func(message string, percentage float64) {
			if message != "" {
				logger.Info(message)
			}
		}
	}
	return &Orchestrator{
		opts:    opts,
		convert: convert,
		up:      up,
		notify:  notify,
		tracker: NewTracker(),
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
}

// SetHistory attaches a history store; job outcomes are recorded there
// best-effort at the end of each worker.
func (o *Orchestrator) SetHistory(store *history.Store) {
	o.hist = store
}

// needsUpload reports whether this batch touches the storage service.
func (o *Orchestrator) needsUpload() bool {
	return o.opts.Mode == ModeConvertUpload || o.opts.Mode == ModeUploadOnly
}

// Run executes the batch to completion. The returned error is non-nil
// only for shared-resource failures that abort the batch before any job
// work begins; per-job failures end up in the summary and job statuses.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	total := len(o.opts.Files)
	for _, vrsFile := range o.opts.Files {
		o.tracker.Register(jobName(vrsFile))
	}

	if o.needsUpload() {
		o.notify("Initializing storage client...", -1)
		if err := o.up.Initialize(ctx); err != nil {
			return Summary{Total: total}, err
		}
		o.notify("Verifying bucket access...", -1)
		if err := o.up.VerifyBucket(ctx, o.opts.Bucket); err != nil {
			return Summary{Total: total}, err
		}
	}

	// Timers own a cancellation handle and stop on every exit path.
	timerCtx, stopTimers := context.WithCancel(ctx)
	defer stopTimers()
	go o.redrawProgress(timerCtx)
	go o.snapshotStatuses(timerCtx)

	logger.Infof("Creating %d worker(s) for parallel processing (max %d concurrent conversions)...", total, o.opts.MaxConcurrent)
	var wg sync.WaitGroup
	for idx, vrsFile := range o.opts.Files {
		wg.Add(1)
		go func(idx int, vrsFile string) {
			defer wg.Done()
			o.processFile(ctx, vrsFile, idx+1, total)
		}(idx, vrsFile)
	}
	wg.Wait()
	stopTimers()

	uploaded, processed := o.tracker.Counts()
	summary := Summary{
		Total:     total,
		Processed: processed,
		Uploaded:  uploaded,
		Success:   uploaded > 0,
	}

	if summary.Success {
		o.notify("", -1)
		o.notify(fmt.Sprintf("All processing complete! %d file(s) processed, %d uploaded.", processed, uploaded), 100)
	} else {
		o.notify("No files were processed successfully", -1)
	}
	return summary, nil
}

// redrawProgress pushes the aggregate percentage on a fixed 1s cadence.
func (o *Orchestrator) redrawProgress(ctx context.Context) {
	ticker := time.NewTicker(progressRedrawInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.notify("", o.tracker.Average())
		}
	}
}

// snapshotStatuses renders the consolidated multi-line status every 5s.
func (o *Orchestrator) snapshotStatuses(ctx context.Context) {
	ticker := time.NewTicker(statusSnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := o.tracker.Snapshot()
			if snapshot != "" {
				o.notify("\n--- STATUS UPDATE ---", -1)
				o.notify(snapshot, -1)
			}
		}
	}
}

// processFile is one job's worker: conversion then upload, according to
// the batch mode. Every failure is converted into a job status string;
// workers never take the orchestrator down.
func (o *Orchestrator) processFile(ctx context.Context, vrsFile string, idx, total int) {
	name := jobName(vrsFile)
	filesUploaded := 0

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[%s] Worker panic: %v", name, r)
			o.tracker.Set(name, fmt.Sprintf("Error: %v", r), 0)
		}
		o.recordOutcome(name, vrsFile, filesUploaded)
		logger.Infof("[%s] Worker completing for file %d/%d", name, idx, total)
	}()

	logger.Infof("[%s] Worker started for file %d/%d", name, idx, total)
	o.tracker.SetStatus(name, "Starting...")

	if o.opts.Mode == ModeUploadOnly {
		o.tracker.SetStatus(name, "Uploading VRS...")
		if err := o.up.UploadFile(ctx, o.opts.Bucket, vrsFile, o.opts.FolderPrefix, nil); err != nil {
			o.tracker.Set(name, fmt.Sprintf("Upload failed: %v", err), 0)
			logger.Errorf("Upload failed for %s: %v", name, err)
			return
		}
		o.tracker.Set(name, "Uploaded VRS", 100)
		filesUploaded = 1
		logger.Infof("Successfully uploaded VRS %s", name)
		return
	}

	fileOutputDir := o.outputDirFor(vrsFile, name)

	var convertedDir string
	if dirHasFiles(fileOutputDir) {
		// Idempotent re-runs never reconvert.
		o.tracker.Set(name, "Skipped (exists)", 100)
		logger.Infof("[%s] Skipping conversion - MPS files already exist at %s", name, fileOutputDir)
		convertedDir = fileOutputDir
	} else {
		convertedDir = o.convertFile(ctx, vrsFile, fileOutputDir, name)
		if convertedDir == "" {
			o.tracker.Set(name, "Conversion failed", 0)
			return
		}
	}

	if o.opts.Mode == ModeConvertOnly {
		o.tracker.Set(name, "Conversion complete", 100)
		logger.Infof("Conversion complete (no upload) for %s", name)
		return
	}

	o.tracker.SetStatus(name, "Uploading...")
	count, err := o.up.UploadDirectory(ctx, o.opts.Bucket, convertedDir, o.opts.FolderPrefix, nil)
	filesUploaded = count
	if err == nil || count > 0 {
		o.tracker.Set(name, fmt.Sprintf("Uploaded (%d files)", count), 100)
		logger.Infof("Successfully uploaded %s: %d files", name, count)
	} else {
		o.tracker.Set(name, fmt.Sprintf("Upload failed: %v", err), 100)
		logger.Errorf("Upload failed for %s: %v", name, err)
	}
}

// convertFile invokes the converter under the concurrency semaphore.
// Returns the converted output directory, or "" on failure.
func (o *Orchestrator) convertFile(ctx context.Context, vrsFile, fileOutputDir, name string) string {
	o.tracker.SetStatus(name, "Waiting to start...")

	logger.Infof("[%s] Waiting to acquire conversion semaphore...", name)
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.tracker.Set(name, fmt.Sprintf("Conversion aborted: %v", err), 0)
		return ""
	}
	defer func() {
		o.sem.Release(1)
		logger.Infof("[%s] Semaphore released", name)
	}()
	logger.Infof("[%s] Semaphore acquired, starting conversion...", name)

	o.tracker.SetStatus(name, "Starting conversion...")

	progress := func(message string, percentage float64) {
		if message != "" {
			o.tracker.SetStatus(name, message)
		}
		if percentage >= 0 {
			o.tracker.SetProgress(name, percentage)
			// Push the recomputed aggregate immediately; the 1s timer
			// redraws it regardless.
			o.notify("", o.tracker.Average())
		}
	}

	resultDir, err := o.convert(ctx, vrsFile, fileOutputDir, progress)
	if err != nil {
		o.tracker.SetStatus(name, fmt.Sprintf("Conversion failed: %v", err))
		logger.Errorf("Conversion failed for %s: %v", name, err)
		return ""
	}

	o.tracker.Set(name, "Conversion complete", 100)
	logger.Infof("Successfully converted %s to %s", name, resultDir)
	return resultDir
}

// outputDirFor picks the job's output directory: under the user-chosen
// location when one was given, otherwise next to the VRS file.
func (o *Orchestrator) outputDirFor(vrsFile, name string) string {
	mpsFolderName := "mps_" + name + "_vrs"
	if o.opts.OutputDir != "" {
		return filepath.Join(o.opts.OutputDir, mpsFolderName)
	}
	return filepath.Join(filepath.Dir(vrsFile), mpsFolderName)
}

func (o *Orchestrator) recordOutcome(name, vrsFile string, filesUploaded int) {
	if o.hist == nil {
		return
	}
	_, status := o.tracker.Get(name)
	err := o.hist.Add(history.Record{
		Name:          name,
		Source:        vrsFile,
		Status:        status,
		FilesUploaded: filesUploaded,
	})
	if err != nil {
		logger.Warnf("Failed to record history for %s: %v", name, err)
	}
}

// jobName derives the stable job identifier from the input path.
func jobName(vrsFile string) string {
	base := filepath.Base(vrsFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// dirHasFiles reports whether dir contains at least one regular file
// anywhere in its tree.
func dirHasFiles(dir string) bool {
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	found := false
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
