package converter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// writeStub creates an executable shell script standing in for the Aria
// CLI. The script name controls which argument convention Convert uses.
func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub CLI: %v", err)
	}
	return path
}

func writeVRS(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("vrs-data"), 0644); err != nil {
		t.Fatalf("failed to write VRS file: %v", err)
	}
	return path
}

type progressCall struct {
	message string
	pct     float64
}

func TestConvertLegacyCLIReportsProgress(t *testing.T) {
	tmp := t.TempDir()
	// legacy convention: --username u --password p --Input f --Output d
	stub := writeStub(t, tmp, "aria-cli", `echo "Processing 50%"
echo "done" > "$8/result.txt"`)
	t.Setenv("ARIA_CLI_PATH", stub)

	vrsFile := writeVRS(t, tmp, "rec.vrs")
	outputDir := filepath.Join(tmp, "out")

	var calls []progressCall
	conv := New("user", "pass")
	resultDir, err := conv.Convert(context.Background(), vrsFile, outputDir, func(message string, pct float64) {
		calls = append(calls, progressCall{message, pct})
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if resultDir != outputDir {
		t.Errorf("Convert returned %q, want %q", resultDir, outputDir)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "result.txt")); err != nil {
		t.Errorf("expected output file missing: %v", err)
	}

	saw50 := false
	for _, c := range calls {
		if c.pct == 50 {
			saw50 = true
		}
	}
	if !saw50 {
		t.Errorf("no progress call with 50%%, got %v", calls)
	}
	if len(calls) == 0 || calls[len(calls)-1].pct != 100 {
		t.Errorf("final progress call should report 100, got %v", calls)
	}
}

func TestConvertNonZeroExitFails(t *testing.T) {
	tmp := t.TempDir()
	stub := writeStub(t, tmp, "aria-cli", `echo "something broke"
exit 3`)
	t.Setenv("ARIA_CLI_PATH", stub)

	vrsFile := writeVRS(t, tmp, "rec.vrs")

	conv := New("user", "pass")
	_, err := conv.Convert(context.Background(), vrsFile, filepath.Join(tmp, "out"), nil)
	if err == nil {
		t.Fatal("Convert succeeded despite non-zero exit")
	}
}

func TestConvertMPSMissingOutputFails(t *testing.T) {
	tmp := t.TempDir()
	// exits 0 but never creates mps_<stem>_vrs
	stub := writeStub(t, tmp, "aria_mps", `exit 0`)
	t.Setenv("ARIA_CLI_PATH", stub)

	srcDir := filepath.Join(tmp, "src")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	vrsFile := writeVRS(t, srcDir, "rec.vrs")

	conv := New("user", "pass")
	_, err := conv.Convert(context.Background(), vrsFile, filepath.Join(tmp, "out"), nil)
	if err == nil {
		t.Fatal("Convert succeeded despite missing output directory")
	}
	if !strings.Contains(err.Error(), "expected MPS output not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConvertMPSMovesOutput(t *testing.T) {
	tmp := t.TempDir()
	// mps convention: single -i <file> ... so $3 is the input path
	stub := writeStub(t, tmp, "aria_mps", `d="$(dirname "$3")/mps_$(basename "$3" .vrs)_vrs"
mkdir -p "$d"
echo slam > "$d/slam.csv"`)
	t.Setenv("ARIA_CLI_PATH", stub)

	srcDir := filepath.Join(tmp, "src")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	vrsFile := writeVRS(t, srcDir, "rec.vrs")
	outputDir := filepath.Join(tmp, "dest", "mps_rec_vrs")

	conv := New("user", "pass")
	resultDir, err := conv.Convert(context.Background(), vrsFile, outputDir, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if resultDir != outputDir {
		t.Errorf("Convert returned %q, want %q", resultDir, outputDir)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "slam.csv")); err != nil {
		t.Errorf("moved output file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(srcDir, "mps_rec_vrs")); !os.IsNotExist(err) {
		t.Errorf("source output directory still present after move")
	}
}

func TestConvertSerializesAuthentication(t *testing.T) {
	tmp := t.TempDir()
	stub := writeStub(t, tmp, "aria-cli", `exit 0`)
	t.Setenv("ARIA_CLI_PATH", stub)

	fileA := writeVRS(t, tmp, "a.vrs")
	fileB := writeVRS(t, tmp, "b.vrs")

	const grace = 150 * time.Millisecond
	lock := &sync.Mutex{}

	newConv := func() *Converter {
		conv := New("user", "pass")
		conv.AuthLock = lock
		conv.AuthGrace = grace
		return conv
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, f := range []string{fileA, fileB} {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			conv := newConv()
			if _, err := conv.Convert(context.Background(), f, filepath.Join(tmp, "out_"+filepath.Base(f)), nil); err != nil {
				t.Errorf("Convert(%s) failed: %v", f, err)
			}
		}(f)
	}
	wg.Wait()

	// Each start holds the shared lock for the grace period, so two
	// conversions cannot finish in less than twice the grace.
	if elapsed := time.Since(start); elapsed < 2*grace {
		t.Errorf("conversions overlapped during authentication: elapsed %v, want >= %v", elapsed, 2*grace)
	}
}

func TestValidateVRSFile(t *testing.T) {
	tmp := t.TempDir()
	vrsFile := writeVRS(t, tmp, "rec.vrs")

	if err := ValidateVRSFile(vrsFile); err != nil {
		t.Errorf("ValidateVRSFile(%s) = %v, want nil", vrsFile, err)
	}
	if err := ValidateVRSFile(filepath.Join(tmp, "missing.vrs")); err == nil {
		t.Error("ValidateVRSFile accepted a missing file")
	}
	if err := ValidateVRSFile(tmp); err == nil {
		t.Error("ValidateVRSFile accepted a directory")
	}
	// wrong extension warns but passes
	txtFile := writeVRS(t, tmp, "notes.txt")
	if err := ValidateVRSFile(txtFile); err != nil {
		t.Errorf("ValidateVRSFile(%s) = %v, want nil", txtFile, err)
	}
}

func TestExpectedOutputDir(t *testing.T) {
	got := ExpectedOutputDir(filepath.Join("data", "walk1.vrs"))
	want := filepath.Join("data", "mps_walk1_vrs")
	if got != want {
		t.Errorf("ExpectedOutputDir = %q, want %q", got, want)
	}
}

func TestResolveExecutableEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	stub := writeStub(t, tmp, "aria_mps", `exit 0`)
	t.Setenv("ARIA_CLI_PATH", stub)

	got, err := ResolveExecutable()
	if err != nil {
		t.Fatalf("ResolveExecutable failed: %v", err)
	}
	if got != stub {
		t.Errorf("ResolveExecutable = %q, want %q", got, stub)
	}
}

func TestRedactPassword(t *testing.T) {
	args := []string{"--username", "u", "--password", "hunter2", "--no-ui"}
	safe := redactPassword(args)
	if safe[3] != "***" {
		t.Errorf("password not redacted: %v", safe)
	}
	if args[3] != "hunter2" {
		t.Errorf("redactPassword mutated its input: %v", args)
	}
}
