package app

import (
	"github.com/spf13/cobra"

	"github.com/tyemirov/certinstall/internal/certificates"
	"github.com/tyemirov/certinstall/internal/certificates/truststore"
	"github.com/tyemirov/certinstall/pkg/logging"
)

const (
	logMessageInstallationOutcome   = "installation outcome"
	logMessageInstallationDeferred  = "installation deferred"
	logMessageBrowserPhaseDegraded  = "browser installation degraded"
	logMessageNoBrowserProfiles     = "no browser profiles discovered"
	logMessageInstallationCompleted = "installation completed"
	logMessageRemovalCompleted      = "removal completed"
)

func runInstall(cmd *cobra.Command, args []string) error {
	resources, resourcesErr := getApplicationResources(cmd)
	if resourcesErr != nil {
		return resourcesErr
	}

	fileSystem := certificates.NewOperatingSystemFileSystem()
	commandRunner := certificates.NewExecutableRunner()

	descriptor, descriptorErr := certificates.NewCertificateDescriptor(
		fileSystem,
		args[0],
		resources.configurationManager.GetString(configKeyInstallPrivateKey),
	)
	if descriptorErr != nil {
		return descriptorErr
	}

	installer := truststore.NewInstaller(commandRunner, fileSystem, truststore.Configuration{
		IncludeBrowserStores: resources.configurationManager.GetBool(configKeyInstallFirefox),
	})

	report, installErr := installer.Install(cmd.Context(), descriptor)
	logReport(resources.loggingService, report)
	if installErr != nil {
		return installErr
	}
	if resources.configurationManager.GetBool(configKeyInstallFirefox) && report.BrowserProfileCount == 0 && !report.BrowserDegraded {
		resources.loggingService.Warn(logMessageNoBrowserProfiles)
	}

	resources.loggingService.Info(logMessageInstallationCompleted,
		logging.String("certificate", descriptor.DerivedName),
		logging.Bool("system_store", report.SystemSucceeded),
		logging.Bool("browser_stores", report.AnyBrowserInstalled),
	)
	return nil
}

func logReport(loggingService *logging.Service, report truststore.InstallationReport) {
	for _, outcome := range report.Outcomes {
		fields := []logging.Field{
			logging.String("target", string(outcome.TargetKind)),
			logging.String("path", outcome.Path),
			logging.Bool("succeeded", outcome.Succeeded),
			logging.String("detail", outcome.Detail),
		}
		if outcome.Succeeded {
			loggingService.Info(logMessageInstallationOutcome, fields...)
		} else {
			loggingService.Warn(logMessageInstallationOutcome, fields...)
		}
	}
	if report.DeferredScript != nil {
		loggingService.Info(logMessageInstallationDeferred,
			logging.String("script", report.DeferredScript.FileName),
			logging.String("instructions", report.DeferredScript.Instructions),
		)
	}
	if report.BrowserDegraded {
		loggingService.Warn(logMessageBrowserPhaseDegraded,
			logging.Int("profiles", report.BrowserProfileCount),
		)
	}
}
