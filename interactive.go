package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ilyLeonOn/meta-aria-uploader/batch"
	"github.com/ilyLeonOn/meta-aria-uploader/converter"
	"github.com/ilyLeonOn/meta-aria-uploader/credentials"
	"github.com/ilyLeonOn/meta-aria-uploader/history"
	"github.com/ilyLeonOn/meta-aria-uploader/logger"
)

// runInteractive drives a batch through terminal prompts. This replaces
// the graphical front end of the original tool; everything below the
// prompts is the same orchestrator the flag-driven mode uses.
func runInteractive(hist *history.Store) int {
	in := bufio.NewScanner(os.Stdin)

	fmt.Println("Aria VRS to MPS Converter + Cloud Uploader")
	fmt.Println("==========================================")

	mode := promptMode(in)

	var ariaUsername, ariaPassword string
	if mode != batch.ModeUploadOnly {
		savedUser, savedPass, haveSaved := credentials.LoadLogin()
		ariaUsername = promptLine(in, "Aria username", savedUser)
		if haveSaved && ariaUsername == savedUser {
			ariaPassword = promptLine(in, "Aria password", savedPass)
		} else {
			ariaPassword = promptLine(in, "Aria password", "")
		}
		if ariaUsername == "" || ariaPassword == "" {
			fmt.Println("Error: Aria username and password are required")
			return 1
		}
	}

	files := promptFiles(in)
	if len(files) == 0 {
		fmt.Println("Error: at least one VRS file is required")
		return 1
	}

	outputDir := promptLine(in, "Output directory (blank: next to each VRS file)", "")

	var gcloudCred, bucket, folderPrefix string
	if mode != batch.ModeConvertOnly {
		savedCred, savedBucket, _ := credentials.LoadCloudSettings()
		gcloudCred = promptLine(in, "Service account JSON path", savedCred)
		bucket = promptLine(in, "Bucket name", savedBucket)
		if gcloudCred == "" || bucket == "" {
			fmt.Println("Error: service account JSON path and bucket name are required")
			return 1
		}
		folderPrefix = promptLine(in, "Folder prefix in bucket (optional)", "")
	}

	maxConcurrent := promptInt(in, "Max concurrent conversions", batch.DefaultMaxConcurrent)
	if maxConcurrent > batch.MaxConcurrentWarnThreshold {
		fmt.Printf("Warning: %d concurrent conversions is above the recommended maximum of %d\n",
			maxConcurrent, batch.MaxConcurrentWarnThreshold)
	}

	if mode != batch.ModeUploadOnly && promptYesNo(in, "Save Aria credentials?") {
		credentials.SaveLogin(ariaUsername, ariaPassword)
	}
	if mode != batch.ModeConvertOnly && promptYesNo(in, "Save cloud settings?") {
		credentials.SaveCloudSettings(gcloudCred, bucket)
	}

	opts := batch.Options{
		Files:         files,
		OutputDir:     outputDir,
		Bucket:        bucket,
		FolderPrefix:  folderPrefix,
		Mode:          mode,
		MaxConcurrent: maxConcurrent,
	}

	orch, up, err := newBatchOrchestrator(opts, ariaUsername, ariaPassword, gcloudCred, terminalNotify, hist)
	if err != nil {
		fmt.Printf("[X] %v\n", err)
		return 1
	}
	if up != nil {
		defer up.Close()
	}

	switch mode {
	case batch.ModeConvertOnly:
		fmt.Println("\nConverting (no upload)...")
	case batch.ModeUploadOnly:
		fmt.Println("\nUploading VRS only...")
	default:
		fmt.Println("\nConverting and uploading...")
	}

	summary, err := orch.Run(context.Background())
	fmt.Println()
	if err != nil {
		fmt.Printf("[X] %v\n", err)
		return 1
	}
	if !summary.Success {
		fmt.Println("[X] No files were processed successfully")
		return 1
	}
	fmt.Printf("[OK] Complete! %d file(s) processed, %d uploaded\n", summary.Processed, summary.Uploaded)
	if bucket != "" {
		dest := folderPrefix
		if dest == "" {
			dest = "(root)"
		}
		fmt.Printf("[OK] Uploaded to: gs://%s/%s\n", bucket, dest)
	}
	return 0
}

// terminalNotify renders orchestrator updates: percentages redraw a
// single progress line, messages get their own lines.
func terminalNotify(message string, percentage float64) {
	if message != "" {
		fmt.Printf("\n%s\n", message)
		logger.Info(message)
	}
	if percentage >= 0 {
		fmt.Printf("\rOverall progress: %6.2f%%", percentage)
	}
}

func promptMode(in *bufio.Scanner) batch.Mode {
	fmt.Println("Processing mode:")
	fmt.Println("  1) Convert and upload (default)")
	fmt.Println("  2) Convert only")
	fmt.Println("  3) Upload VRS only")
	switch promptLine(in, "Choose mode [1-3]", "1") {
	case "2":
		return batch.ModeConvertOnly
	case "3":
		return batch.ModeUploadOnly
	default:
		return batch.ModeConvertUpload
	}
}

func promptFiles(in *bufio.Scanner) []string {
	fmt.Println("Enter VRS file paths, one per line (blank line to finish):")
	var files []string
	for {
		line := promptLine(in, fmt.Sprintf("File %d", len(files)+1), "")
		if line == "" {
			break
		}
		if err := converter.ValidateVRSFile(line); err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		files = append(files, line)
	}
	return files
}

func promptLine(in *bufio.Scanner, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}
	if !in.Scan() {
		return defaultValue
	}
	value := strings.TrimSpace(in.Text())
	if value == "" {
		return defaultValue
	}
	return value
}

func promptInt(in *bufio.Scanner, label string, defaultValue int) int {
	value := promptLine(in, label, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func promptYesNo(in *bufio.Scanner, label string) bool {
	value := strings.ToLower(promptLine(in, label+" (y/N)", "n"))
	return value == "y" || value == "yes"
}
