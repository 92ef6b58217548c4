package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ilyLeonOn/meta-aria-uploader/batch"
	"github.com/ilyLeonOn/meta-aria-uploader/config"
	"github.com/ilyLeonOn/meta-aria-uploader/converter"
	"github.com/ilyLeonOn/meta-aria-uploader/history"
	"github.com/ilyLeonOn/meta-aria-uploader/logger"
	"github.com/ilyLeonOn/meta-aria-uploader/uploader"
)

const historyMaxAge = 30 * 24 * time.Hour

func main() {
	var (
		input       string
		output      string
		username    string
		password    string
		gcloudCred  string
		bucket      string
		folder      string
		mode        string
		concurrent  int
		showHistory bool
	)

	flag.StringVar(&input, "input", "", "Path to the input VRS file (CLI mode)")
	flag.StringVar(&input, "i", "", "Shorthand for -input")
	flag.StringVar(&output, "output", "", "Path to the output directory for MPS files")
	flag.StringVar(&output, "o", "", "Shorthand for -output")
	flag.StringVar(&username, "username", "", "Aria username")
	flag.StringVar(&username, "u", "", "Shorthand for -username")
	flag.StringVar(&password, "password", "", "Aria password")
	flag.StringVar(&password, "p", "", "Shorthand for -password")
	flag.StringVar(&gcloudCred, "gcloud-cred", "", "Path to Google Cloud service account JSON")
	flag.StringVar(&bucket, "bucket", "", "Cloud storage bucket name")
	flag.StringVar(&folder, "folder", "", "Optional folder prefix in the bucket")
	flag.StringVar(&mode, "mode", string(batch.ModeConvertUpload), "Processing mode: convert_upload, convert_only, upload_only")
	flag.IntVar(&concurrent, "concurrent", batch.DefaultMaxConcurrent, "Max concurrent conversions")
	flag.BoolVar(&showHistory, "history", false, "List recorded job outcomes and exit")
	flag.Parse()

	if err := config.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config directory: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(config.GetLogFilePath(), true); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	hist, err := history.Open(config.GetHistoryDBPath())
	if err != nil {
		logger.Warnf("Job history unavailable: %v", err)
	} else {
		defer hist.Close()
		if err := hist.CleanupOldRecords(historyMaxAge); err != nil {
			logger.Warnf("Failed to clean up old history records: %v", err)
		}
	}

	if showHistory {
		os.Exit(printHistory(hist))
	}

	// No input file means interactive mode.
	if input == "" {
		os.Exit(runInteractive(hist))
	}

	os.Exit(runLegacyCLI(legacyArgs{
		input:      input,
		output:     output,
		username:   username,
		password:   password,
		gcloudCred: gcloudCred,
		bucket:     bucket,
		folder:     folder,
		mode:       batch.Mode(mode),
		concurrent: concurrent,
	}, hist))
}

type legacyArgs struct {
	input      string
	output     string
	username   string
	password   string
	gcloudCred string
	bucket     string
	folder     string
	mode       batch.Mode
	concurrent int
}

// runLegacyCLI handles the flag-driven single-file mode.
func runLegacyCLI(args legacyArgs, hist *history.Store) int {
	ctx := context.Background()

	ariaUsername := args.username
	if ariaUsername == "" {
		ariaUsername = os.Getenv("ARIA_USERNAME")
	}
	ariaPassword := args.password
	if ariaPassword == "" {
		ariaPassword = os.Getenv("ARIA_PASSWORD")
	}

	needsConvert := args.mode != batch.ModeUploadOnly
	needsUpload := args.mode != batch.ModeConvertOnly

	if needsConvert && (ariaUsername == "" || ariaPassword == "") {
		fmt.Println("Error: Aria credentials not provided.")
		fmt.Println("Set via: -username and -password arguments")
		fmt.Println("Or via environment variables: ARIA_USERNAME and ARIA_PASSWORD")
		return 1
	}
	if needsUpload && (args.gcloudCred == "" || args.bucket == "") && args.mode == batch.ModeUploadOnly {
		fmt.Println("Error: -gcloud-cred and -bucket are required for upload_only mode")
		return 1
	}

	outputDir := args.output
	if outputDir == "" {
		outputDir = "./mps_output"
	}

	var conv *converter.Converter
	var resultDir string
	if needsConvert {
		conv = converter.New(ariaUsername, ariaPassword)
		var err error
		resultDir, err = conv.Convert(ctx, args.input, outputDir, nil)
		if err != nil {
			fmt.Println("[X] Conversion failed!")
			return 1
		}
	}

	if !needsUpload || args.gcloudCred == "" || args.bucket == "" {
		fmt.Println("[OK] Conversion completed successfully!")
		fmt.Printf("[OK] Output directory: %s\n", resultDir)
		if needsUpload {
			fmt.Println("(Skipping upload: -gcloud-cred and -bucket not provided)")
		}
		return 0
	}

	fmt.Println("\nStarting upload to cloud storage...")
	up, err := uploader.ForBackend(config.GetUploadBackend(), backendAccessInfo(args.gcloudCred))
	if err != nil {
		fmt.Printf("[X] %v\n", err)
		return 1
	}
	defer up.Close()

	if err := up.Initialize(ctx); err != nil {
		fmt.Printf("[X] %v\n", err)
		return 1
	}
	if err := up.VerifyBucket(ctx, args.bucket); err != nil {
		fmt.Printf("[X] %v\n", err)
		return 1
	}

	if args.mode == batch.ModeUploadOnly {
		if err := up.UploadFile(ctx, args.bucket, args.input, args.folder, nil); err != nil {
			fmt.Printf("[X] %v\n", err)
			return 1
		}
		fmt.Println("[OK] Uploaded 1 file successfully!")
		return 0
	}

	count, err := up.UploadDirectory(ctx, args.bucket, resultDir, args.folder, nil)
	if err != nil && count == 0 {
		fmt.Printf("[X] %v\n", err)
		return 1
	}
	fmt.Printf("[OK] Uploaded %d file(s) successfully!\n", count)
	return 0
}

// backendAccessInfo builds the access-info map for the configured backend.
// GCS takes the service account key path; S3 and SFTP read their settings
// from the environment.
func backendAccessInfo(gcloudCred string) map[string]string {
	return map[string]string{
		"credentialsPath": gcloudCred,
		"accessKey":       os.Getenv("ARIA_UPLOADER_S3_ACCESS_KEY"),
		"secretKey":       os.Getenv("ARIA_UPLOADER_S3_SECRET_KEY"),
		"region":          os.Getenv("ARIA_UPLOADER_S3_REGION"),
		"host":            os.Getenv("ARIA_UPLOADER_SFTP_HOST"),
		"port":            os.Getenv("ARIA_UPLOADER_SFTP_PORT"),
		"user":            os.Getenv("ARIA_UPLOADER_SFTP_USER"),
		"password":        os.Getenv("ARIA_UPLOADER_SFTP_PASSWORD"),
		"privateKey":      os.Getenv("ARIA_UPLOADER_SFTP_KEY"),
	}
}

func printHistory(hist *history.Store) int {
	if hist == nil {
		fmt.Println("Job history unavailable")
		return 1
	}
	records, err := hist.List()
	if err != nil {
		fmt.Printf("Failed to list history: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Println("No recorded job outcomes")
		return 0
	}
	for _, r := range records {
		fmt.Printf("%s  %-20s %-30s %d file(s)\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Name, r.Status, r.FilesUploaded)
	}
	return 0
}

// newBatchOrchestrator wires the converter (sharing one auth lock across
// the batch) and uploader into an orchestrator.
func newBatchOrchestrator(opts batch.Options, ariaUsername, ariaPassword, gcloudCred string, notify batch.NotifyFunc, hist *history.Store) (*batch.Orchestrator, *uploader.Uploader, error) {
	var convert batch.ConvertFunc
	if opts.Mode != batch.ModeUploadOnly {
		conv := converter.New(ariaUsername, ariaPassword)
		conv.AuthLock = &sync.Mutex{}
		convert = conv.Convert
	}

	var up *uploader.Uploader
	if opts.Mode != batch.ModeConvertOnly {
		var err error
		up, err = uploader.ForBackend(config.GetUploadBackend(), backendAccessInfo(gcloudCred))
		if err != nil {
			return nil, nil, err
		}
	}

	orch := batch.NewOrchestrator(opts, convert, up, notify)
	if hist != nil {
		orch.SetHistory(hist)
	}
	return orch, up, nil
}
