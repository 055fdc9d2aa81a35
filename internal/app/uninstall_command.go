package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/certinstall/internal/certificates"
	"github.com/tyemirov/certinstall/internal/certificates/truststore"
	"github.com/tyemirov/certinstall/pkg/logging"
)

func newUninstallCommand(resources *applicationResources, installFlags *pflag.FlagSet) *cobra.Command {
	uninstallCommand := &cobra.Command{
		Use:           "uninstall <certificate.pem>",
		Short:         "Remove a previously installed CA root certificate",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cmd, args)
		},
	}
	uninstallCommand.Flags().AddFlagSet(installFlags)
	return uninstallCommand
}

func runUninstall(cmd *cobra.Command, args []string) error {
	resources, resourcesErr := getApplicationResources(cmd)
	if resourcesErr != nil {
		return resourcesErr
	}

	fileSystem := certificates.NewOperatingSystemFileSystem()
	commandRunner := certificates.NewExecutableRunner()

	descriptor, descriptorErr := certificates.NewCertificateDescriptor(fileSystem, args[0], "")
	if descriptorErr != nil {
		return descriptorErr
	}

	installer := truststore.NewInstaller(commandRunner, fileSystem, truststore.Configuration{
		IncludeBrowserStores: resources.configurationManager.GetBool(configKeyInstallFirefox),
	})

	report, uninstallErr := installer.Uninstall(cmd.Context(), descriptor)
	logReport(resources.loggingService, report)
	if uninstallErr != nil {
		return uninstallErr
	}

	resources.loggingService.Info(logMessageRemovalCompleted,
		logging.String("certificate", descriptor.DerivedName),
		logging.Bool("system_store", report.SystemSucceeded),
	)
	return nil
}
