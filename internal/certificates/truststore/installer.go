package truststore

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tyemirov/certinstall/internal/certificates"
)

const (
	commandNameSecurity      = "security"
	commandNameCopy          = "cp"
	commandNameMakeDirectory = "mkdir"
	commandNameRemove        = "rm"
	commandNameLink          = "ln"

	macOSSystemKeychainPath = "/Library/Keychains/System.keychain"

	defaultCertificateFilePermissions fs.FileMode = 0o644
	defaultAnchorDirectoryPermissions fs.FileMode = 0o755
)

// Configuration controls installer behavior across platforms.
type Configuration struct {
	OperatingSystem            string
	PlatformVariantOverride    PlatformVariant
	AnchorDirectoryOverride    string
	CertificateFilePermissions fs.FileMode
	OpenSSLDirectoryCandidates []TrustStoreTarget
	MacOSKeychainPath          string
	ScriptDirectory            string
	IncludeBrowserStores       bool
	Browser                    BrowserConfiguration
}

// Installer drives platform resolution, strategy selection, and the
// installation itself, producing an InstallationReport.
type Installer struct {
	commandRunner certificates.CommandRunner
	fileSystem    certificates.FileSystem
	configuration Configuration
}

// NewInstaller constructs an Installer, applying platform defaults for any
// configuration left unset.
func NewInstaller(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) Installer {
	if configuration.OperatingSystem == "" {
		configuration.OperatingSystem = runtime.GOOS
	}
	if configuration.CertificateFilePermissions == 0 {
		configuration.CertificateFilePermissions = defaultCertificateFilePermissions
	}
	if len(configuration.OpenSSLDirectoryCandidates) == 0 {
		configuration.OpenSSLDirectoryCandidates = openSSLDirectoryCandidates
	}
	if configuration.MacOSKeychainPath == "" {
		configuration.MacOSKeychainPath = macOSSystemKeychainPath
	}
	return Installer{
		commandRunner: commandRunner,
		fileSystem:    fileSystem,
		configuration: configuration,
	}
}

// Install installs the certificate into the system trust store for the
// resolved platform and, when configured, into every discovered browser
// certificate database. System-store failures are fatal and abort the run;
// browser failures are captured per profile and only aggregated.
func (installer Installer) Install(ctx context.Context, descriptor certificates.CertificateDescriptor) (InstallationReport, error) {
	report := InstallationReport{}
	variant := installer.resolveVariant()

	switch variant {
	case PlatformDebian, PlatformRedHat, PlatformFedora:
		target, _ := targetForVariant(variant)
		outcome, installErr := installer.installSystemAnchor(ctx, descriptor, target, false)
		report.appendOutcome(outcome)
		if installErr != nil {
			return report, installErr
		}
	case PlatformLinuxOther:
		target, probeErr := installer.probeOpenSSLTarget()
		if probeErr != nil {
			return report, probeErr
		}
		outcome, installErr := installer.installSystemAnchor(ctx, descriptor, target, true)
		report.appendOutcome(outcome)
		if installErr != nil {
			return report, installErr
		}
	case PlatformMacOS:
		outcome, installErr := installer.installMacOSKeychain(ctx, descriptor)
		report.appendOutcome(outcome)
		if installErr != nil {
			return report, installErr
		}
	case PlatformWindows:
		outcome, script, scriptErr := installer.emitWindowsScript(descriptor, buildWindowsInstallScript(descriptor))
		report.appendOutcome(outcome)
		if scriptErr != nil {
			return report, scriptErr
		}
		report.DeferredScript = script
	default:
		return report, &certificates.UnsupportedPlatformError{Platform: installer.configuration.OperatingSystem}
	}

	report.SystemSucceeded = report.Outcomes[len(report.Outcomes)-1].Succeeded

	if installer.configuration.IncludeBrowserStores {
		browserInstaller := NewBrowserInstaller(installer.commandRunner, installer.fileSystem, installer.configuration.Browser)
		browserOutcomes, profileCount, degraded := browserInstaller.Install(ctx, descriptor)
		report.BrowserProfileCount = profileCount
		report.foldBrowserOutcomes(browserOutcomes, degraded)
	}

	return report, nil
}

// Uninstall removes the certificate from the system trust store and, when
// configured, from every discovered browser certificate database.
func (installer Installer) Uninstall(ctx context.Context, descriptor certificates.CertificateDescriptor) (InstallationReport, error) {
	report := InstallationReport{}
	variant := installer.resolveVariant()

	switch variant {
	case PlatformDebian, PlatformRedHat, PlatformFedora:
		target, _ := targetForVariant(variant)
		outcome, removeErr := installer.removeSystemAnchor(ctx, descriptor, target, false)
		report.appendOutcome(outcome)
		if removeErr != nil {
			return report, removeErr
		}
	case PlatformLinuxOther:
		target, probeErr := installer.probeOpenSSLTarget()
		if probeErr != nil {
			return report, probeErr
		}
		outcome, removeErr := installer.removeSystemAnchor(ctx, descriptor, target, true)
		report.appendOutcome(outcome)
		if removeErr != nil {
			return report, removeErr
		}
	case PlatformMacOS:
		outcome, removeErr := installer.removeMacOSKeychain(ctx, descriptor)
		report.appendOutcome(outcome)
		if removeErr != nil {
			return report, removeErr
		}
	case PlatformWindows:
		outcome, script, scriptErr := installer.emitWindowsScript(descriptor, buildWindowsUninstallScript(descriptor))
		report.appendOutcome(outcome)
		if scriptErr != nil {
			return report, scriptErr
		}
		report.DeferredScript = script
	default:
		return report, &certificates.UnsupportedPlatformError{Platform: installer.configuration.OperatingSystem}
	}

	report.SystemSucceeded = report.Outcomes[len(report.Outcomes)-1].Succeeded

	if installer.configuration.IncludeBrowserStores {
		browserInstaller := NewBrowserInstaller(installer.commandRunner, installer.fileSystem, installer.configuration.Browser)
		browserOutcomes := browserInstaller.Uninstall(ctx, descriptor)
		report.foldBrowserOutcomes(browserOutcomes, false)
	}

	return report, nil
}

func (installer Installer) resolveVariant() PlatformVariant {
	if installer.configuration.PlatformVariantOverride != PlatformUnknown {
		return installer.configuration.PlatformVariantOverride
	}
	return ResolvePlatform(installer.fileSystem, installer.configuration.OperatingSystem)
}

// probeOpenSSLTarget finds the first existing OpenSSL-style certificate
// directory. Guessing a location when none exists would scatter anchor files
// nobody consults, so absence is an unsupported platform.
func (installer Installer) probeOpenSSLTarget() (TrustStoreTarget, error) {
	for _, candidate := range installer.configuration.OpenSSLDirectoryCandidates {
		exists, existsErr := installer.fileSystem.FileExists(candidate.AnchorDirectory)
		if existsErr == nil && exists {
			return candidate, nil
		}
	}
	return TrustStoreTarget{}, &certificates.UnsupportedPlatformError{
		Platform: installer.configuration.OperatingSystem,
		Detail:   "no OpenSSL-style certificate directory found",
	}
}

func (installer Installer) installSystemAnchor(ctx context.Context, descriptor certificates.CertificateDescriptor, target TrustStoreTarget, withSubjectHashLink bool) (InstallationOutcome, error) {
	anchorDirectory := target.AnchorDirectory
	if installer.configuration.AnchorDirectoryOverride != "" {
		anchorDirectory = installer.configuration.AnchorDirectoryOverride
	}
	destinationPath := filepath.Join(anchorDirectory, descriptor.DerivedName+target.FileExtension)
	outcome := InstallationOutcome{TargetKind: TargetKindSystem, Path: destinationPath}

	if directoryErr := installer.ensureAnchorDirectory(ctx, anchorDirectory); directoryErr != nil {
		outcome.Detail = "create anchor directory failed"
		return outcome, &certificates.StoreWriteError{Path: anchorDirectory, Err: directoryErr}
	}
	if copyErr := installer.copyCertificate(ctx, descriptor.SourcePath, destinationPath); copyErr != nil {
		outcome.Detail = "copy certificate failed"
		return outcome, &certificates.StoreWriteError{Path: destinationPath, Err: copyErr}
	}
	if withSubjectHashLink {
		if linkErr := installer.createSubjectHashLink(ctx, descriptor, anchorDirectory, destinationPath); linkErr != nil {
			outcome.Detail = "create subject hash link failed"
			return outcome, &certificates.StoreWriteError{Path: anchorDirectory, Err: linkErr}
		}
	}

	refreshCommand := strings.Join(target.RefreshCommand, " ")
	if refreshErr := installer.commandRunner.RunWithPrivileges(ctx, target.RefreshCommand[0], target.RefreshCommand[1:]); refreshErr != nil {
		outcome.Detail = "trust refresh failed"
		return outcome, &certificates.StoreRefreshError{Command: refreshCommand, Err: refreshErr}
	}

	outcome.Succeeded = true
	outcome.Detail = "installed and refreshed with " + refreshCommand
	return outcome, nil
}

func (installer Installer) removeSystemAnchor(ctx context.Context, descriptor certificates.CertificateDescriptor, target TrustStoreTarget, withSubjectHashLink bool) (InstallationOutcome, error) {
	anchorDirectory := target.AnchorDirectory
	if installer.configuration.AnchorDirectoryOverride != "" {
		anchorDirectory = installer.configuration.AnchorDirectoryOverride
	}
	destinationPath := filepath.Join(anchorDirectory, descriptor.DerivedName+target.FileExtension)
	outcome := InstallationOutcome{TargetKind: TargetKindSystem, Path: destinationPath}

	if removeErr := installer.removePath(ctx, destinationPath); removeErr != nil {
		outcome.Detail = "remove certificate failed"
		return outcome, &certificates.StoreWriteError{Path: destinationPath, Err: removeErr}
	}
	if withSubjectHashLink && descriptor.Certificate != nil {
		if hash, hashErr := subjectHash(descriptor.Certificate); hashErr == nil {
			linkPath := filepath.Join(anchorDirectory, hash+".0")
			if removeErr := installer.removePath(ctx, linkPath); removeErr != nil {
				outcome.Detail = "remove subject hash link failed"
				return outcome, &certificates.StoreWriteError{Path: linkPath, Err: removeErr}
			}
		}
	}

	refreshCommand := strings.Join(target.RefreshCommand, " ")
	if refreshErr := installer.commandRunner.RunWithPrivileges(ctx, target.RefreshCommand[0], target.RefreshCommand[1:]); refreshErr != nil {
		outcome.Detail = "trust refresh failed"
		return outcome, &certificates.StoreRefreshError{Command: refreshCommand, Err: refreshErr}
	}

	outcome.Succeeded = true
	outcome.Detail = "removed and refreshed with " + refreshCommand
	return outcome, nil
}

func (installer Installer) installMacOSKeychain(ctx context.Context, descriptor certificates.CertificateDescriptor) (InstallationOutcome, error) {
	keychainPath := installer.configuration.MacOSKeychainPath
	outcome := InstallationOutcome{TargetKind: TargetKindSystem, Path: keychainPath}
	arguments := []string{"add-trusted-cert", "-d", "-r", "trustRoot", "-k", keychainPath, descriptor.SourcePath}
	if installErr := installer.commandRunner.RunWithPrivileges(ctx, commandNameSecurity, arguments); installErr != nil {
		outcome.Detail = "security add-trusted-cert failed"
		return outcome, &certificates.StoreWriteError{Path: keychainPath, Err: installErr}
	}
	outcome.Succeeded = true
	outcome.Detail = "added to keychain as trusted root"
	return outcome, nil
}

func (installer Installer) removeMacOSKeychain(ctx context.Context, descriptor certificates.CertificateDescriptor) (InstallationOutcome, error) {
	keychainPath := installer.configuration.MacOSKeychainPath
	outcome := InstallationOutcome{TargetKind: TargetKindSystem, Path: keychainPath}
	arguments := []string{"delete-certificate", "-c", descriptor.DerivedName, keychainPath}
	if removeErr := installer.commandRunner.RunWithPrivileges(ctx, commandNameSecurity, arguments); removeErr != nil {
		outcome.Detail = "security delete-certificate failed"
		return outcome, &certificates.StoreWriteError{Path: keychainPath, Err: removeErr}
	}
	outcome.Succeeded = true
	outcome.Detail = "removed from keychain"
	return outcome, nil
}

// emitWindowsScript writes the deferred-action script next to the source
// certificate instead of mutating the store, since a safe store mutation
// requires an elevated, interactive context this process does not assume.
func (installer Installer) emitWindowsScript(descriptor certificates.CertificateDescriptor, script DeferredScript) (InstallationOutcome, *DeferredScript, error) {
	scriptDirectory := installer.configuration.ScriptDirectory
	if scriptDirectory == "" {
		scriptDirectory = filepath.Dir(descriptor.SourcePath)
	}
	scriptPath := filepath.Join(scriptDirectory, script.FileName)
	outcome := InstallationOutcome{TargetKind: TargetKindSystem, Path: scriptPath}

	if writeErr := installer.fileSystem.WriteFile(scriptPath, []byte(script.Content), defaultCertificateFilePermissions); writeErr != nil {
		outcome.Detail = "write deferred script failed"
		return outcome, nil, &certificates.StoreWriteError{Path: scriptPath, Err: writeErr}
	}
	outcome.Detail = "wrote deferred installation script; " + script.Instructions
	return outcome, &script, nil
}

func (installer Installer) ensureAnchorDirectory(ctx context.Context, anchorDirectory string) error {
	directoryErr := installer.fileSystem.EnsureDirectory(anchorDirectory, defaultAnchorDirectoryPermissions)
	if directoryErr == nil {
		return nil
	}
	if !errors.Is(directoryErr, fs.ErrPermission) {
		return directoryErr
	}
	return installer.commandRunner.RunWithPrivileges(ctx, commandNameMakeDirectory, []string{"-p", anchorDirectory})
}

func (installer Installer) copyCertificate(ctx context.Context, sourcePath string, destinationPath string) error {
	content, readErr := installer.fileSystem.ReadFile(sourcePath)
	if readErr != nil {
		return readErr
	}
	writeErr := installer.fileSystem.WriteFile(destinationPath, content, installer.configuration.CertificateFilePermissions)
	if writeErr == nil {
		return nil
	}
	if !errors.Is(writeErr, fs.ErrPermission) {
		return writeErr
	}
	return installer.commandRunner.RunWithPrivileges(ctx, commandNameCopy, []string{sourcePath, destinationPath})
}

// createSubjectHashLink creates the hash-named symbolic link certificate
// libraries use to look up anchors in directories without a flat index. The
// link is skipped when the certificate did not parse, since no subject hash
// can be derived from an opaque file.
func (installer Installer) createSubjectHashLink(ctx context.Context, descriptor certificates.CertificateDescriptor, anchorDirectory string, destinationPath string) error {
	if descriptor.Certificate == nil {
		return nil
	}
	hash, hashErr := subjectHash(descriptor.Certificate)
	if hashErr != nil {
		return hashErr
	}
	linkPath := filepath.Join(anchorDirectory, hash+".0")
	linkTarget := filepath.Base(destinationPath)
	_ = installer.fileSystem.Remove(linkPath)
	linkErr := installer.fileSystem.Symlink(linkTarget, linkPath)
	if linkErr == nil {
		return nil
	}
	if !errors.Is(linkErr, fs.ErrPermission) {
		return linkErr
	}
	return installer.commandRunner.RunWithPrivileges(ctx, commandNameLink, []string{"-sfn", linkTarget, linkPath})
}

func (installer Installer) removePath(ctx context.Context, path string) error {
	removeErr := installer.fileSystem.Remove(path)
	if removeErr == nil || errors.Is(removeErr, fs.ErrNotExist) {
		return nil
	}
	if !errors.Is(removeErr, fs.ErrPermission) {
		return removeErr
	}
	return installer.commandRunner.RunWithPrivileges(ctx, commandNameRemove, []string{"-f", path})
}
