package converter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ilyLeonOn/meta-aria-uploader/logger"
)

// ProgressFunc receives progress updates during conversion. A percentage
// of -1 means "no percentage update"; an empty message means "no text to
// display".
type ProgressFunc func(message string, percentage float64)

// DefaultAuthGrace is how long the authentication lock is held after the
// aria_mps process starts. The CLI authenticates early in its lifetime,
// and two processes logging in with the same account at the same moment
// race on the login endpoint.
const DefaultAuthGrace = 3 * time.Second

// candidate executable names, checked in order
var executableCandidates = []string{
	"aria_mps",
	"aria_mps.exe",
	"aria_mps.bat",
	"aria-cli",
	"aria-cli.exe",
	"aria-cli.bat",
}

// Converter runs VRS processing through Meta's MPS service via the
// aria_mps CLI (or the legacy aria-cli).
type Converter struct {
	Username string
	Password string

	// AuthLock, when set, serializes the authentication phase of
	// concurrently starting aria_mps processes.
	AuthLock *sync.Mutex

	// AuthGrace is how long AuthLock is held after process start.
	// Zero means DefaultAuthGrace.
	AuthGrace time.Duration
}

// New returns a Converter for the given Aria account.
func New(username, password string) *Converter {
	return &Converter{Username: username, Password: password}
}

// ValidateVRSFile checks that the input exists and is a regular file.
// A missing .vrs extension is logged but not fatal.
func ValidateVRSFile(vrsPath string) error {
	info, err := os.Stat(vrsPath)
	if err != nil {
		return fmt.Errorf("VRS file not found: %s", vrsPath)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a file: %s", vrsPath)
	}
	if strings.ToLower(filepath.Ext(vrsPath)) != ".vrs" {
		logger.Warnf("File does not have .vrs extension: %s", vrsPath)
	}
	logger.Infof("VRS file validated: %s (%d bytes)", vrsPath, info.Size())
	return nil
}

// ResolveExecutable locates the Aria CLI. Order: ARIA_CLI_PATH override,
// PATH lookup over the candidate names, the user-local bin directory,
// then the directory containing the running executable.
func ResolveExecutable() (string, error) {
	if envPath := os.Getenv("ARIA_CLI_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, name := range executableCandidates {
		if resolved, err := exec.LookPath(name); err == nil {
			return resolved, nil
		}
	}

	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	for _, dir := range dirs {
		for _, name := range executableCandidates {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("aria CLI not found in ARIA_CLI_PATH, PATH, or local bin directories")
}

// ExpectedOutputDir returns the directory the aria_mps CLI writes its
// outputs to by convention: mps_<stem>_vrs next to the input file.
func ExpectedOutputDir(vrsFile string) string {
	base := filepath.Base(vrsFile)
	if strings.EqualFold(filepath.Ext(base), ".vrs") {
		base = base[:len(base)-len(filepath.Ext(base))]
	}
	return filepath.Join(filepath.Dir(vrsFile), "mps_"+base+"_vrs")
}

// Convert processes one VRS file and returns the directory holding the
// processed outputs. All failures are terminal; there are no retries.
func (c *Converter) Convert(ctx context.Context, vrsFile, outputDir string, progress ProgressFunc) (string, error) {
	report := func(message string, percentage float64) {
		if message != "" {
			logger.Info(message)
		}
		if progress != nil {
			progress(message, percentage)
		}
	}

	if err := ValidateVRSFile(vrsFile); err != nil {
		logger.Errorf("%v", err)
		report("Failed to validate VRS file", 0)
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Errorf("Failed to create output directory: %v", err)
		report(fmt.Sprintf("Failed to create output directory: %v", err), 0)
		return "", fmt.Errorf("create output directory: %w", err)
	}

	ariaExecutable, err := ResolveExecutable()
	if err != nil {
		logger.Error("Aria CLI not found in PATH or local bin. Ensure it is installed and available.")
		report("Aria CLI not found. Check installation or PATH.", 0)
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(ariaExecutable), filepath.Ext(filepath.Base(ariaExecutable)))
	useMPSCLI := strings.ToLower(stem) == "aria_mps"

	var args []string
	var sourceOutputDir string
	if useMPSCLI {
		args = []string{
			"single",
			"-i", vrsFile,
			"--username", c.Username,
			"--password", c.Password,
			"--no-ui",
			"--no-save-token",
		}
		sourceOutputDir = ExpectedOutputDir(vrsFile)
	} else {
		args = []string{
			"--username", c.Username,
			"--password", c.Password,
			"--Input", vrsFile,
			"--Output", outputDir,
		}
		sourceOutputDir = outputDir
	}

	logger.Infof("Executing Aria CLI command (VRS: %s): %s %s",
		filepath.Base(vrsFile), ariaExecutable, strings.Join(redactPassword(args), " "))
	logger.Infof("Expected output directory: %s", sourceOutputDir)

	cmd := exec.CommandContext(ctx, ariaExecutable, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := c.startSerialized(cmd, filepath.Base(vrsFile)); err != nil {
		pw.Close()
		logger.Errorf("Failed to start Aria CLI: %v", err)
		report("Aria CLI not found. Is it installed?", 0)
		return "", fmt.Errorf("start aria CLI: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		pw.Close()
	}()

	outputLines, lastPct := c.streamOutput(pr, report)
	err = <-waitErr

	if err != nil {
		logger.Errorf("Aria CLI failed: %v", err)
		logger.Error("Full conversion output:")
		logger.Error(strings.Join(outputLines, "\n"))
		report(fmt.Sprintf("Conversion failed: %v", err), 0)
		return "", fmt.Errorf("aria CLI: %w", err)
	}

	finalOutputDir := sourceOutputDir
	if useMPSCLI {
		if _, statErr := os.Stat(sourceOutputDir); statErr != nil {
			logger.Errorf("Expected MPS output not found: %s", sourceOutputDir)
			report("Conversion completed, but output folder is missing.", 0)
			return "", fmt.Errorf("expected MPS output not found: %s", sourceOutputDir)
		}
		moved, moveErr := moveIfNeeded(sourceOutputDir, outputDir)
		if moveErr != nil {
			logger.Errorf("Error moving conversion output: %v", moveErr)
			report(fmt.Sprintf("Error moving files: %v", moveErr), 0)
			return "", moveErr
		}
		finalOutputDir = moved
	}

	if lastPct >= 0 {
		// Preserved from the original tool: completion reports
		// max(100, lastPct), never less than 100.
		report("", math.Max(100, lastPct))
	}

	logConvertedFiles(finalOutputDir)
	return finalOutputDir, nil
}

// startSerialized starts the subprocess, holding the shared auth lock
// across the start plus the grace period so only one aria_mps process
// authenticates at a time.
func (c *Converter) startSerialized(cmd *exec.Cmd, vrsName string) error {
	if c.AuthLock == nil {
		return cmd.Start()
	}

	grace := c.AuthGrace
	if grace <= 0 {
		grace = DefaultAuthGrace
	}

	logger.Infof("Acquiring authentication lock for %s...", vrsName)
	c.AuthLock.Lock()
	defer func() {
		c.AuthLock.Unlock()
		logger.Infof("Authentication lock released for %s", vrsName)
	}()

	if err := cmd.Start(); err != nil {
		return err
	}
	// Give the authentication handshake time to finish before the next
	// process is allowed to start authenticating.
	time.Sleep(grace)
	return nil
}

// streamOutput consumes the combined stdout/stderr line stream, forwarding
// percentage updates immediately, error lines immediately, and a cleaned
// textual status at most once every 5 seconds.
func (c *Converter) streamOutput(r io.Reader, report ProgressFunc) ([]string, float64) {
	var outputLines []string
	lastPct := -1.0
	lastPctLine := ""
	currentStage := ""
	lastStatusAt := time.Now()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		outputLines = append(outputLines, line)
		logger.Infof("  %s", line)

		if stage := ExtractStage(line); stage != "" {
			currentStage = stage
		}

		if pct, ok := ParsePercentage(line); ok {
			lastPct = pct
			lastPctLine = line
			report(currentStage, truncate2(pct))
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "exception") {
			report(line, -1)
			continue
		}

		if now := time.Now(); now.Sub(lastStatusAt) >= 5*time.Second {
			if lastPct >= 0 && lastPctLine != "" {
				message := TruncatePercentages(CleanMessage(lastPctLine))
				if currentStage != "" {
					message = currentStage + ": " + message
				}
				report(message, -1)
			}
			lastStatusAt = now
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("Error reading Aria CLI output: %v", err)
	}
	return outputLines, lastPct
}

// moveIfNeeded moves the conversion output from the CLI's conventional
// location to the requested directory. Moving rather than copying avoids
// duplicating multi-gigabyte recordings; an existing destination is
// removed first.
func moveIfNeeded(sourceDir, destDir string) (string, error) {
	srcAbs, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", fmt.Errorf("resolve source dir: %w", err)
	}
	dstAbs, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolve destination dir: %w", err)
	}
	if srcAbs == dstAbs {
		logger.Infof("Output directory is same as source, no move needed: %s", sourceDir)
		return sourceDir, nil
	}

	logger.Infof("Moving conversion output from %s to %s...", sourceDir, destDir)
	if _, err := os.Stat(destDir); err == nil {
		logger.Infof("Removing existing directory: %s", destDir)
		if err := os.RemoveAll(destDir); err != nil {
			return "", fmt.Errorf("remove existing destination: %w", err)
		}
	}
	if err := os.Rename(sourceDir, destDir); err != nil {
		return "", fmt.Errorf("move conversion output: %w", err)
	}
	logger.Infof("Successfully moved conversion output to %s", destDir)
	return destDir, nil
}

func logConvertedFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warnf("Could not list output files: %v", err)
		return
	}
	logger.Info("VRS to MPS conversion successful!")
	logger.Infof("Generated %d item(s) in %s:", len(entries), dir)
	for _, entry := range entries {
		if entry.IsDir() {
			logger.Infof("  DIR:  %s/", entry.Name())
			continue
		}
		if info, err := entry.Info(); err == nil {
			logger.Infof("  FILE: %s (%d bytes)", entry.Name(), info.Size())
		}
	}
}

func redactPassword(args []string) []string {
	safe := make([]string, len(args))
	copy(safe, args)
	for i, arg := range safe {
		if arg == "--password" && i+1 < len(safe) {
			safe[i+1] = "***"
		}
	}
	return safe
}
