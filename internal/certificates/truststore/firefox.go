package truststore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tyemirov/certinstall/internal/certificates"
)

const (
	commandNameCertutil = "certutil"

	nssSQLDatabasePrefix    = "sql:"
	nssLegacyDatabasePrefix = "dbm:"

	// Trusted to issue website certificates, not for email or code signing.
	nssTrustAttributes = "C,,"

	firefoxUserPreferenceLine = "user_pref(\"security.enterprise_roots.enabled\", true);"
	firefoxUserPreferenceFile = "user.js"

	defaultGuideFileName = "INSTALL_CERTIFICATE.txt"
)

// BrowserConfiguration controls NSS profile discovery and the fallback guide.
type BrowserConfiguration struct {
	OperatingSystem  string
	ProfilesRoots    []string
	UserDatabasePath string
	GuideFileName    string
}

// BrowserProfile is one discovered NSS certificate database location.
type BrowserProfile struct {
	ProfilePath     string
	HasCertDatabase bool
	databasePrefix  string
}

// BrowserInstaller installs certificates into NSS certificate databases, which
// are independent of the operating system trust anchors.
type BrowserInstaller struct {
	commandRunner certificates.CommandRunner
	fileSystem    certificates.FileSystem
	configuration BrowserConfiguration
}

// NewBrowserInstaller constructs a BrowserInstaller with platform defaults for
// any configuration left unset.
func NewBrowserInstaller(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration BrowserConfiguration) BrowserInstaller {
	if configuration.OperatingSystem == "" {
		configuration.OperatingSystem = runtime.GOOS
	}
	if configuration.GuideFileName == "" {
		configuration.GuideFileName = defaultGuideFileName
	}
	return BrowserInstaller{
		commandRunner: commandRunner,
		fileSystem:    fileSystem,
		configuration: configuration,
	}
}

// Install installs the certificate into every discovered profile. Profiles are
// processed independently; one failure never short-circuits the others. When
// the certutil tool is absent the run degrades to writing a manual
// installation guide per discoverable profiles root instead of failing.
func (browserInstaller BrowserInstaller) Install(ctx context.Context, descriptor certificates.CertificateDescriptor) ([]InstallationOutcome, int, bool) {
	profilesRoots := browserInstaller.discoverProfilesRoots()
	profiles := browserInstaller.discoverProfiles(profilesRoots)

	if _, lookupErr := browserInstaller.commandRunner.LookPath(commandNameCertutil); lookupErr != nil {
		unavailableErr := &certificates.ToolUnavailableError{Tool: commandNameCertutil}
		outcomes := make([]InstallationOutcome, 0, len(profilesRoots))
		for _, profilesRoot := range profilesRoots {
			outcomes = append(outcomes, browserInstaller.writeFallbackGuide(profilesRoot, descriptor, unavailableErr))
		}
		for _, profile := range profiles {
			// Firefox can still honor the OS store once enterprise roots
			// are enabled, so the preference rides along with the guide.
			_ = browserInstaller.ensureEnterpriseRootsPreference(profile.ProfilePath)
		}
		return outcomes, len(profiles), len(profilesRoots) > 0
	}

	outcomes := make([]InstallationOutcome, 0, len(profiles))
	for _, profile := range profiles {
		outcomes = append(outcomes, browserInstaller.installProfile(ctx, descriptor, profile))
	}
	return outcomes, len(profiles), false
}

// Uninstall removes the certificate from every discovered profile that has a
// certificate database. A missing certutil tool makes removal a no-op.
func (browserInstaller BrowserInstaller) Uninstall(ctx context.Context, descriptor certificates.CertificateDescriptor) []InstallationOutcome {
	if _, lookupErr := browserInstaller.commandRunner.LookPath(commandNameCertutil); lookupErr != nil {
		return nil
	}
	profiles := browserInstaller.discoverProfiles(browserInstaller.discoverProfilesRoots())

	var outcomes []InstallationOutcome
	for _, profile := range profiles {
		if !profile.HasCertDatabase {
			continue
		}
		outcome := InstallationOutcome{TargetKind: TargetKindBrowser, Path: profile.ProfilePath}
		arguments := []string{"-D", "-d", profile.databasePrefix + profile.ProfilePath, "-n", descriptor.DerivedName}
		if removeErr := browserInstaller.commandRunner.Run(ctx, commandNameCertutil, arguments); removeErr != nil {
			outcome.Detail = "remove from certificate database failed: " + removeErr.Error()
		} else {
			outcome.Succeeded = true
			outcome.Detail = "removed " + descriptor.DerivedName
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (browserInstaller BrowserInstaller) installProfile(ctx context.Context, descriptor certificates.CertificateDescriptor, profile BrowserProfile) InstallationOutcome {
	outcome := InstallationOutcome{TargetKind: TargetKindBrowser, Path: profile.ProfilePath}

	databasePrefix := profile.databasePrefix
	if !profile.HasCertDatabase {
		initializeArguments := []string{"-N", "-d", nssSQLDatabasePrefix + profile.ProfilePath, "--empty-password"}
		if initializeErr := browserInstaller.commandRunner.Run(ctx, commandNameCertutil, initializeArguments); initializeErr != nil {
			outcome.Detail = "initialize certificate database failed: " + initializeErr.Error()
			return outcome
		}
		databasePrefix = nssSQLDatabasePrefix
	}

	importArguments := []string{"-A", "-d", databasePrefix + profile.ProfilePath, "-t", nssTrustAttributes, "-n", descriptor.DerivedName, "-i", descriptor.SourcePath}
	if importErr := browserInstaller.commandRunner.Run(ctx, commandNameCertutil, importArguments); importErr != nil {
		outcome.Detail = "import into certificate database failed: " + importErr.Error()
		return outcome
	}
	outcome.Succeeded = true
	outcome.Detail = "imported as " + descriptor.DerivedName
	return outcome
}

// writeFallbackGuide produces the self-contained manual-installation artifact
// for one profiles root: a step-by-step guide plus a convenience copy of the
// certificate next to it.
func (browserInstaller BrowserInstaller) writeFallbackGuide(profilesRoot string, descriptor certificates.CertificateDescriptor, unavailableErr *certificates.ToolUnavailableError) InstallationOutcome {
	guidePath := filepath.Join(profilesRoot, browserInstaller.configuration.GuideFileName)
	outcome := InstallationOutcome{TargetKind: TargetKindBrowser, Path: guidePath}

	referenceExtension := filepath.Ext(descriptor.SourcePath)
	if referenceExtension == "" {
		referenceExtension = ".pem"
	}
	referencePath := filepath.Join(profilesRoot, descriptor.DerivedName+referenceExtension)
	guideContent := buildManualInstallationGuide(descriptor, referencePath)

	if writeErr := browserInstaller.fileSystem.WriteFile(guidePath, []byte(guideContent), 0o644); writeErr != nil {
		outcome.Detail = unavailableErr.Error() + "; writing the manual guide failed: " + writeErr.Error()
		return outcome
	}
	if content, readErr := browserInstaller.fileSystem.ReadFile(descriptor.SourcePath); readErr == nil {
		_ = browserInstaller.fileSystem.WriteFile(referencePath, content, 0o644)
	}
	outcome.Detail = unavailableErr.Error() + "; wrote manual installation guide"
	return outcome
}

func buildManualInstallationGuide(descriptor certificates.CertificateDescriptor, referencePath string) string {
	var builder strings.Builder
	builder.WriteString("Manual browser installation for " + descriptor.DerivedName + "\n\n")
	builder.WriteString("The certutil tool was not available, so the certificate could not be\n")
	builder.WriteString("imported automatically. To trust it in your browser:\n\n")
	builder.WriteString("  1. Open your browser's certificate manager\n")
	builder.WriteString("     (Firefox: Settings > Privacy & Security > Certificates > View Certificates).\n")
	builder.WriteString("  2. Under Authorities, choose Import and select the certificate at:\n")
	builder.WriteString("     " + descriptor.SourcePath + "\n")
	builder.WriteString("     (a copy is also placed at " + referencePath + ")\n")
	builder.WriteString("  3. Enable \"Trust this CA to identify websites\" and confirm.\n")
	return builder.String()
}

// ensureEnterpriseRootsPreference appends the enterprise-roots preference to a
// profile's user.js so Firefox consults the OS trust store.
func (browserInstaller BrowserInstaller) ensureEnterpriseRootsPreference(profilePath string) error {
	preferencePath := filepath.Join(profilePath, firefoxUserPreferenceFile)
	existingContent, readErr := browserInstaller.fileSystem.ReadFile(preferencePath)
	if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
		return readErr
	}
	contentString := string(existingContent)
	if strings.Contains(contentString, firefoxUserPreferenceLine) {
		return nil
	}
	if len(contentString) > 0 && !strings.HasSuffix(contentString, "\n") {
		contentString += "\n"
	}
	contentString += firefoxUserPreferenceLine + "\n"
	return browserInstaller.fileSystem.WriteFile(preferencePath, []byte(contentString), 0o600)
}

// discoverProfilesRoots returns the profiles roots that actually exist on this
// host. A platform whose root cannot be determined yields zero roots, which
// fails closed rather than erroring.
func (browserInstaller BrowserInstaller) discoverProfilesRoots() []string {
	candidates := browserInstaller.configuration.ProfilesRoots
	if len(candidates) == 0 {
		candidates = defaultProfilesRoots(browserInstaller.configuration.OperatingSystem)
	}
	var existing []string
	for _, candidate := range candidates {
		exists, existsErr := browserInstaller.fileSystem.FileExists(candidate)
		if existsErr == nil && exists {
			existing = append(existing, candidate)
		}
	}
	return existing
}

func (browserInstaller BrowserInstaller) discoverProfiles(profilesRoots []string) []BrowserProfile {
	var profiles []BrowserProfile
	for _, profilesRoot := range profilesRoots {
		entries, listErr := browserInstaller.fileSystem.ListDirectory(profilesRoot)
		if listErr != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			profilePath := filepath.Join(profilesRoot, entry.Name())
			if profile, usable := browserInstaller.classifyProfile(profilePath, entry.Name()); usable {
				profiles = append(profiles, profile)
			}
		}
	}
	if userDatabase, usable := browserInstaller.userDatabaseProfile(); usable {
		profiles = append(profiles, userDatabase)
	}
	return profiles
}

func (browserInstaller BrowserInstaller) classifyProfile(profilePath string, directoryName string) (BrowserProfile, bool) {
	if prefix, found := browserInstaller.databasePrefix(profilePath); found {
		return BrowserProfile{ProfilePath: profilePath, HasCertDatabase: true, databasePrefix: prefix}, true
	}
	loweredName := strings.ToLower(directoryName)
	if strings.Contains(loweredName, "default") || strings.Contains(loweredName, "normal") {
		return BrowserProfile{ProfilePath: profilePath}, true
	}
	return BrowserProfile{}, false
}

// userDatabaseProfile includes the shared per-user NSS database that
// command-line NSS consumers read, when it exists.
func (browserInstaller BrowserInstaller) userDatabaseProfile() (BrowserProfile, bool) {
	userDatabasePath := browserInstaller.configuration.UserDatabasePath
	if userDatabasePath == "" {
		if browserInstaller.configuration.OperatingSystem == "windows" {
			return BrowserProfile{}, false
		}
		homeDirectory, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return BrowserProfile{}, false
		}
		userDatabasePath = filepath.Join(homeDirectory, ".pki", "nssdb")
	}
	prefix, found := browserInstaller.databasePrefix(userDatabasePath)
	if !found {
		return BrowserProfile{}, false
	}
	return BrowserProfile{ProfilePath: userDatabasePath, HasCertDatabase: true, databasePrefix: prefix}, true
}

func (browserInstaller BrowserInstaller) databasePrefix(profilePath string) (string, bool) {
	modernExists, modernErr := browserInstaller.fileSystem.FileExists(filepath.Join(profilePath, "cert9.db"))
	if modernErr == nil && modernExists {
		return nssSQLDatabasePrefix, true
	}
	legacyExists, legacyErr := browserInstaller.fileSystem.FileExists(filepath.Join(profilePath, "cert8.db"))
	if legacyErr == nil && legacyExists {
		return nssLegacyDatabasePrefix, true
	}
	return "", false
}

func defaultProfilesRoots(operatingSystem string) []string {
	switch operatingSystem {
	case "darwin":
		homeDirectory, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil
		}
		return []string{filepath.Join(homeDirectory, "Library", "Application Support", "Firefox", "Profiles")}
	case "linux":
		homeDirectory, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil
		}
		return []string{filepath.Join(homeDirectory, ".mozilla", "firefox")}
	case "windows":
		applicationData := os.Getenv("APPDATA")
		if applicationData == "" {
			return nil
		}
		return []string{filepath.Join(applicationData, "Mozilla", "Firefox", "Profiles")}
	default:
		return nil
	}
}
