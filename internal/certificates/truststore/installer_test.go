package truststore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tyemirov/certinstall/internal/certificates"
)

// permissionDeniedFileSystem refuses every mutation the way a root-owned
// directory does, while delegating reads to the real filesystem.
type permissionDeniedFileSystem struct {
	certificates.FileSystem
}

func (permissionDeniedFileSystem) EnsureDirectory(string, fs.FileMode) error {
	return fs.ErrPermission
}

func (permissionDeniedFileSystem) WriteFile(string, []byte, fs.FileMode) error {
	return fs.ErrPermission
}

func (permissionDeniedFileSystem) Symlink(string, string) error {
	return fs.ErrPermission
}

// failingWriteFileSystem fails writes with a non-permission error.
type failingWriteFileSystem struct {
	certificates.FileSystem
	writeErr error
}

func (failing failingWriteFileSystem) WriteFile(string, []byte, fs.FileMode) error {
	return failing.writeErr
}

func TestInstallDebianAnchor(t *testing.T) {
	sourceDirectory := t.TempDir()
	anchorDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Example Root CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformDebian,
		AnchorDirectoryOverride: anchorDirectory,
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	if installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if !report.SystemSucceeded {
		t.Fatalf("expected system installation to succeed, report %+v", report)
	}

	destinationPath := filepath.Join(anchorDirectory, "Example Root CA.crt")
	installedContent, readErr := os.ReadFile(destinationPath)
	if readErr != nil {
		t.Fatalf("read installed certificate: %v", readErr)
	}
	sourceContent, _ := os.ReadFile(descriptor.SourcePath)
	if string(installedContent) != string(sourceContent) {
		t.Fatalf("installed certificate differs from source")
	}

	if len(commandRunner.executed) != 1 {
		t.Fatalf("expected exactly one refresh command, got %+v", commandRunner.executed)
	}
	refresh := commandRunner.executed[0]
	if refresh.executable != "update-ca-certificates" || !refresh.privileged {
		t.Fatalf("unexpected refresh command %+v", refresh)
	}

	if len(report.Outcomes) != 1 {
		t.Fatalf("expected one outcome, got %+v", report.Outcomes)
	}
	outcome := report.Outcomes[0]
	if outcome.TargetKind != TargetKindSystem || outcome.Path != destinationPath || !outcome.Succeeded {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	// Re-running over an existing anchor overwrites in place and refreshes again.
	if _, rerunErr := installer.Install(context.Background(), descriptor); rerunErr != nil {
		t.Fatalf("repeated install: %v", rerunErr)
	}
	if len(commandRunner.executed) != 2 {
		t.Fatalf("expected a second refresh command, got %+v", commandRunner.executed)
	}
}

func TestInstallFedoraSharesRedHatTarget(t *testing.T) {
	sourceDirectory := t.TempDir()
	anchorDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Fedora Test CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformFedora,
		AnchorDirectoryOverride: anchorDirectory,
	})

	if _, installErr := installer.Install(context.Background(), descriptor); installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if _, statErr := os.Stat(filepath.Join(anchorDirectory, "Fedora Test CA.pem")); statErr != nil {
		t.Fatalf("expected pem anchor file: %v", statErr)
	}
	if len(commandRunner.executed) != 1 {
		t.Fatalf("expected one refresh command, got %+v", commandRunner.executed)
	}
	refresh := commandRunner.executed[0]
	if refresh.executable != "update-ca-trust" || len(refresh.arguments) != 1 || refresh.arguments[0] != "extract" {
		t.Fatalf("unexpected refresh command %+v", refresh)
	}
}

func TestInstallLinuxOtherProbesCandidatesAndLinksHash(t *testing.T) {
	sourceDirectory := t.TempDir()
	existingCandidateDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Probe CA")

	candidates := []TrustStoreTarget{
		{Variant: PlatformLinuxOther, AnchorDirectory: filepath.Join(sourceDirectory, "missing"), FileExtension: ".pem", RefreshCommand: []string{"update-ca-certificates"}},
		{Variant: PlatformLinuxOther, AnchorDirectory: existingCandidateDirectory, FileExtension: ".pem", RefreshCommand: []string{"trust", "extract-compat"}},
	}

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:            "linux",
		PlatformVariantOverride:    PlatformLinuxOther,
		OpenSSLDirectoryCandidates: candidates,
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	if installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if !report.SystemSucceeded {
		t.Fatalf("expected system installation to succeed, report %+v", report)
	}

	destinationPath := filepath.Join(existingCandidateDirectory, "Probe CA.pem")
	if _, statErr := os.Stat(destinationPath); statErr != nil {
		t.Fatalf("expected anchor in second candidate directory: %v", statErr)
	}

	hash, hashErr := subjectHash(descriptor.Certificate)
	if hashErr != nil {
		t.Fatalf("subject hash: %v", hashErr)
	}
	linkPath := filepath.Join(existingCandidateDirectory, hash+".0")
	linkTarget, linkErr := os.Readlink(linkPath)
	if linkErr != nil {
		t.Fatalf("expected subject hash link: %v", linkErr)
	}
	if linkTarget != "Probe CA.pem" {
		t.Fatalf("unexpected link target %q", linkTarget)
	}

	if len(commandRunner.executed) != 1 {
		t.Fatalf("expected one refresh command, got %+v", commandRunner.executed)
	}
	refresh := commandRunner.executed[0]
	if refresh.executable != "trust" || len(refresh.arguments) != 1 || refresh.arguments[0] != "extract-compat" {
		t.Fatalf("unexpected refresh command %+v", refresh)
	}
}

func TestInstallLinuxOtherWithoutCandidateDirectory(t *testing.T) {
	sourceDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Probe CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformLinuxOther,
		OpenSSLDirectoryCandidates: []TrustStoreTarget{
			{Variant: PlatformLinuxOther, AnchorDirectory: filepath.Join(sourceDirectory, "missing"), FileExtension: ".pem", RefreshCommand: []string{"update-ca-certificates"}},
		},
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	var unsupportedErr *certificates.UnsupportedPlatformError
	if !errors.As(installErr, &unsupportedErr) {
		t.Fatalf("expected UnsupportedPlatformError, got %v", installErr)
	}
	if len(report.Outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %+v", report.Outcomes)
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("expected no commands, got %+v", commandRunner.executed)
	}
}

func TestInstallUnknownPlatform(t *testing.T) {
	sourceDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Probe CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, newFakeFileSystem(), Configuration{OperatingSystem: "plan9"})

	_, installErr := installer.Install(context.Background(), descriptor)
	var unsupportedErr *certificates.UnsupportedPlatformError
	if !errors.As(installErr, &unsupportedErr) {
		t.Fatalf("expected UnsupportedPlatformError, got %v", installErr)
	}
	if unsupportedErr.Platform != "plan9" {
		t.Fatalf("unexpected platform in error: %q", unsupportedErr.Platform)
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("expected no commands, got %+v", commandRunner.executed)
	}
}

func TestInstallRefreshFailure(t *testing.T) {
	sourceDirectory := t.TempDir()
	anchorDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Refresh CA")

	commandRunner := newRecordingCommandRunner(errors.New("exit status 1"))
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformDebian,
		AnchorDirectoryOverride: anchorDirectory,
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	var refreshErr *certificates.StoreRefreshError
	if !errors.As(installErr, &refreshErr) {
		t.Fatalf("expected StoreRefreshError, got %v", installErr)
	}
	if refreshErr.Command != "update-ca-certificates" {
		t.Fatalf("unexpected command in error: %q", refreshErr.Command)
	}
	if report.SystemSucceeded {
		t.Fatalf("system must not be reported successful after refresh failure")
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Succeeded {
		t.Fatalf("expected one failed outcome, got %+v", report.Outcomes)
	}
	// The anchor copy happens before the refresh and stays in place.
	if _, statErr := os.Stat(filepath.Join(anchorDirectory, "Refresh CA.crt")); statErr != nil {
		t.Fatalf("expected anchor file despite refresh failure: %v", statErr)
	}
}

func TestInstallMacOSKeychain(t *testing.T) {
	sourceDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Keychain CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:   "darwin",
		MacOSKeychainPath: "/tmp/test.keychain",
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	if installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if !report.SystemSucceeded {
		t.Fatalf("expected system installation to succeed, report %+v", report)
	}

	if len(commandRunner.executed) != 1 {
		t.Fatalf("expected one security command, got %+v", commandRunner.executed)
	}
	executed := commandRunner.executed[0]
	if executed.executable != "security" || !executed.privileged {
		t.Fatalf("unexpected command %+v", executed)
	}
	expectedArguments := []string{"add-trusted-cert", "-d", "-r", "trustRoot", "-k", "/tmp/test.keychain", descriptor.SourcePath}
	if len(executed.arguments) != len(expectedArguments) {
		t.Fatalf("unexpected security arguments %v", executed.arguments)
	}
	for index, argument := range expectedArguments {
		if executed.arguments[index] != argument {
			t.Fatalf("security argument %d: got %q, want %q", index, executed.arguments[index], argument)
		}
	}
}

func TestInstallWindowsWritesDeferredScript(t *testing.T) {
	sourceDirectory := t.TempDir()
	scriptDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Windows CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem: "windows",
		ScriptDirectory: scriptDirectory,
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	if installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if report.SystemSucceeded {
		t.Fatalf("deferred script must not count as a completed installation")
	}
	if report.DeferredScript == nil {
		t.Fatalf("expected deferred script in report")
	}
	if report.DeferredScript.FileName != "install-Windows CA.cmd" {
		t.Fatalf("unexpected script file name %q", report.DeferredScript.FileName)
	}

	scriptPath := filepath.Join(scriptDirectory, report.DeferredScript.FileName)
	scriptContent, readErr := os.ReadFile(scriptPath)
	if readErr != nil {
		t.Fatalf("read deferred script: %v", readErr)
	}
	if !strings.Contains(string(scriptContent), "certutil -addstore -f Root") {
		t.Fatalf("script missing certutil invocation: %q", scriptContent)
	}
	if !strings.Contains(string(scriptContent), descriptor.SourcePath) {
		t.Fatalf("script missing certificate path: %q", scriptContent)
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("expected no direct store mutation, got %+v", commandRunner.executed)
	}
}

func TestInstallElevatesWhenDirectWritesAreDenied(t *testing.T) {
	sourceDirectory := t.TempDir()
	candidateDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Elevated CA")

	commandRunner := newRecordingCommandRunner()
	fileSystem := permissionDeniedFileSystem{FileSystem: certificates.NewOperatingSystemFileSystem()}
	installer := NewInstaller(commandRunner, fileSystem, Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformLinuxOther,
		OpenSSLDirectoryCandidates: []TrustStoreTarget{
			{Variant: PlatformLinuxOther, AnchorDirectory: candidateDirectory, FileExtension: ".pem", RefreshCommand: []string{"trust", "extract-compat"}},
		},
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	if installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if !report.SystemSucceeded {
		t.Fatalf("expected elevated installation to succeed, report %+v", report)
	}

	if len(commandRunner.executed) != 4 {
		t.Fatalf("expected mkdir, cp, ln, and refresh, got %+v", commandRunner.executed)
	}
	for index, executed := range commandRunner.executed {
		if !executed.privileged {
			t.Fatalf("command %d must be privileged: %+v", index, executed)
		}
	}
	destinationPath := filepath.Join(candidateDirectory, "Elevated CA.pem")
	makeDirectory := commandRunner.executed[0]
	if makeDirectory.executable != "mkdir" || makeDirectory.arguments[0] != "-p" || makeDirectory.arguments[1] != candidateDirectory {
		t.Fatalf("unexpected mkdir command %+v", makeDirectory)
	}
	copyCommand := commandRunner.executed[1]
	if copyCommand.executable != "cp" || copyCommand.arguments[0] != descriptor.SourcePath || copyCommand.arguments[1] != destinationPath {
		t.Fatalf("unexpected cp command %+v", copyCommand)
	}
	linkCommand := commandRunner.executed[2]
	if linkCommand.executable != "ln" || linkCommand.arguments[0] != "-sfn" || linkCommand.arguments[1] != "Elevated CA.pem" {
		t.Fatalf("unexpected ln command %+v", linkCommand)
	}
	if commandRunner.executed[3].executable != "trust" {
		t.Fatalf("unexpected refresh command %+v", commandRunner.executed[3])
	}
}

func TestInstallWriteFailureSurfacesPath(t *testing.T) {
	sourceDirectory := t.TempDir()
	anchorDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Unwritable CA")

	commandRunner := newRecordingCommandRunner()
	fileSystem := failingWriteFileSystem{
		FileSystem: certificates.NewOperatingSystemFileSystem(),
		writeErr:   errors.New("no space left on device"),
	}
	installer := NewInstaller(commandRunner, fileSystem, Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformDebian,
		AnchorDirectoryOverride: anchorDirectory,
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	var writeErr *certificates.StoreWriteError
	if !errors.As(installErr, &writeErr) {
		t.Fatalf("expected StoreWriteError, got %v", installErr)
	}
	expectedPath := filepath.Join(anchorDirectory, "Unwritable CA.crt")
	if writeErr.Path != expectedPath {
		t.Fatalf("error must name the destination path: got %q, want %q", writeErr.Path, expectedPath)
	}
	if report.SystemSucceeded {
		t.Fatalf("system must not be reported successful after a write failure")
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("a non-permission write failure must not trigger elevation or refresh, got %+v", commandRunner.executed)
	}
}

func TestInstallMacOSKeychainFailure(t *testing.T) {
	sourceDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Keychain CA")

	commandRunner := newRecordingCommandRunner(errors.New("exit status 1"))
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:   "darwin",
		MacOSKeychainPath: "/tmp/test.keychain",
	})

	report, installErr := installer.Install(context.Background(), descriptor)
	var writeErr *certificates.StoreWriteError
	if !errors.As(installErr, &writeErr) {
		t.Fatalf("expected StoreWriteError for a failed keychain mutation, got %v", installErr)
	}
	if writeErr.Path != "/tmp/test.keychain" {
		t.Fatalf("error must name the keychain path, got %q", writeErr.Path)
	}
	if report.SystemSucceeded {
		t.Fatalf("system must not be reported successful after a keychain failure")
	}
}

func TestUninstallDebianAnchor(t *testing.T) {
	sourceDirectory := t.TempDir()
	anchorDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Removable CA")

	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:         "linux",
		PlatformVariantOverride: PlatformDebian,
		AnchorDirectoryOverride: anchorDirectory,
	})

	if _, installErr := installer.Install(context.Background(), descriptor); installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	report, uninstallErr := installer.Uninstall(context.Background(), descriptor)
	if uninstallErr != nil {
		t.Fatalf("uninstall: %v", uninstallErr)
	}
	if !report.SystemSucceeded {
		t.Fatalf("expected removal to succeed, report %+v", report)
	}
	assertFileMissing(t, filepath.Join(anchorDirectory, "Removable CA.crt"))
	if len(commandRunner.executed) != 2 {
		t.Fatalf("expected refresh after install and after uninstall, got %+v", commandRunner.executed)
	}
}

func TestUninstallLinuxOtherRemovesHashLink(t *testing.T) {
	sourceDirectory := t.TempDir()
	candidateDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Linked CA")

	candidates := []TrustStoreTarget{
		{Variant: PlatformLinuxOther, AnchorDirectory: candidateDirectory, FileExtension: ".pem", RefreshCommand: []string{"trust", "extract-compat"}},
	}
	commandRunner := newRecordingCommandRunner()
	installer := NewInstaller(commandRunner, certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem:            "linux",
		PlatformVariantOverride:    PlatformLinuxOther,
		OpenSSLDirectoryCandidates: candidates,
	})

	if _, installErr := installer.Install(context.Background(), descriptor); installErr != nil {
		t.Fatalf("install: %v", installErr)
	}
	if _, uninstallErr := installer.Uninstall(context.Background(), descriptor); uninstallErr != nil {
		t.Fatalf("uninstall: %v", uninstallErr)
	}
	hash, hashErr := subjectHash(descriptor.Certificate)
	if hashErr != nil {
		t.Fatalf("subject hash: %v", hashErr)
	}
	assertFileMissing(t, filepath.Join(candidateDirectory, "Linked CA.pem"))
	assertFileMissing(t, filepath.Join(candidateDirectory, hash+".0"))
}

func TestUninstallWindowsWritesRemovalScript(t *testing.T) {
	sourceDirectory := t.TempDir()
	scriptDirectory := t.TempDir()
	descriptor := writeCertificateFixture(t, sourceDirectory, "root.pem", "Windows CA")

	installer := NewInstaller(newRecordingCommandRunner(), certificates.NewOperatingSystemFileSystem(), Configuration{
		OperatingSystem: "windows",
		ScriptDirectory: scriptDirectory,
	})

	report, uninstallErr := installer.Uninstall(context.Background(), descriptor)
	if uninstallErr != nil {
		t.Fatalf("uninstall: %v", uninstallErr)
	}
	if report.DeferredScript == nil || report.DeferredScript.FileName != "uninstall-Windows CA.cmd" {
		t.Fatalf("unexpected deferred script %+v", report.DeferredScript)
	}
	scriptContent, readErr := os.ReadFile(filepath.Join(scriptDirectory, report.DeferredScript.FileName))
	if readErr != nil {
		t.Fatalf("read deferred script: %v", readErr)
	}
	if !strings.Contains(string(scriptContent), "certutil -delstore Root") {
		t.Fatalf("script missing certutil removal: %q", scriptContent)
	}
}
