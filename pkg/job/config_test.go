package job

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, contents string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600)
	if err != nil {
		t.Fatalf("write config file %s: %v", name, err)
	}
}

const validJobDoc = `
job_name: backup
command: /usr/bin/backup.sh
enabled: true
ai_aware: true
retry_on_fail: true
max_retries: 5
preferred_time: ["02:00", "14:00"]
max_cpu_percent: 50
`

func TestLoadAllReadsAllConfigFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "backup.yaml", validJobDoc)
	writeConfigFile(t, dir, "cleanup.yml", "job_name: cleanup\ncommand: /bin/rm -rf /tmp/old\n")
	writeConfigFile(t, dir, "ignored.txt", "not a job file")

	loader := NewLoader(dir, nil)

	specs, errs := loader.LoadAll()
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d: %+v", len(specs), specs)
	}

	if specs[0].Name != "backup" {
		t.Fatalf("expected sorted order to start with backup, got %q", specs[0].Name)
	}
}

func TestLoadAllMissingDirReturnsEmpty(t *testing.T) {
	t.Parallel()

	loader := NewLoader(filepath.Join(t.TempDir(), "missing"), nil)

	specs, errs := loader.LoadAll()
	if specs != nil || errs != nil {
		t.Fatalf("expected nil/nil for a missing directory, got specs=%v errs=%v", specs, errs)
	}
}

func TestLoadAllCollectsPerFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "good.yaml", validJobDoc)
	writeConfigFile(t, dir, "bad.yaml", "command: missing a job_name\n")

	loader := NewLoader(dir, nil)

	specs, errs := loader.LoadAll()
	if len(specs) != 1 {
		t.Fatalf("expected the good file to still load, got %d specs", len(specs))
	}

	if len(errs) != 1 {
		t.Fatalf("expected one error for the bad file, got %v", errs)
	}
}

func TestSpecFromDocumentDefaultsEnabledTrue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "job.yaml", "job_name: job\ncommand: /bin/true\n")

	loader := NewLoader(dir, nil)

	spec, err := loader.loadFile(filepath.Join(dir, "job.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !spec.Enabled {
		t.Fatal("expected enabled to default to true when omitted")
	}

	if spec.MaxRetries != defaultMaxRetries {
		t.Fatalf("expected default max retries %d, got %d", defaultMaxRetries, spec.MaxRetries)
	}
}

func TestSpecFromDocumentRejectsMissingName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "job.yaml", "command: /bin/true\n")

	loader := NewLoader(dir, nil)

	_, err := loader.loadFile(filepath.Join(dir, "job.yaml"))
	if err == nil {
		t.Fatal("expected error for missing job_name")
	}
}

func TestSpecFromDocumentRejectsMissingCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "job.yaml", "job_name: job\n")

	loader := NewLoader(dir, nil)

	_, err := loader.loadFile(filepath.Join(dir, "job.yaml"))
	if err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestLoadFileValidatesWhenValidatorPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "job.yaml", "job_name: job\ncommand: /bin/true\nbogus_key: true\n")

	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("unexpected error constructing validator: %v", err)
	}

	loader := NewLoader(dir, validator)

	_, err = loader.loadFile(filepath.Join(dir, "job.yaml"))
	if err == nil {
		t.Fatal("expected validation error for unknown key")
	}
}

func TestLoadFileRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "job.txt", "job_name: job\ncommand: /bin/true\n")

	loader := NewLoader(dir, nil)

	_, err := loader.loadFile(filepath.Join(dir, "job.txt"))
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
}
