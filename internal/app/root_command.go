package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRootCommand(resources *applicationResources) *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           fmt.Sprintf("%s <certificate.pem>", defaultApplicationName),
		Short:         "Install a CA root certificate into the system and browser trust stores",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfigurationFile(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, args)
		},
	}

	installFlags := pflag.NewFlagSet("install", pflag.ContinueOnError)
	configureInstallFlags(installFlags, resources.configurationManager)
	rootCommand.Flags().AddFlagSet(installFlags)

	rootCommand.PersistentFlags().String(flagNameConfigFile, "", "Path to configuration file")

	rootCommand.AddCommand(newUninstallCommand(resources, installFlags))

	return rootCommand
}

func configureInstallFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.Bool(flagNameFirefox, configurationManager.GetBool(configKeyInstallFirefox), "Also install into NSS (Firefox) certificate databases")
	flagSet.String(flagNamePrivateKey, configurationManager.GetString(configKeyInstallPrivateKey), "Path to the CA private key (validated only, never installed)")
	flagSet.String(flagNameLoggingType, configurationManager.GetString(configKeyInstallLoggingType), "Logging type (CONSOLE or JSON)")
	_ = configurationManager.BindPFlag(configKeyInstallFirefox, flagSet.Lookup(flagNameFirefox))
	_ = configurationManager.BindPFlag(configKeyInstallPrivateKey, flagSet.Lookup(flagNamePrivateKey))
	_ = configurationManager.BindPFlag(configKeyInstallLoggingType, flagSet.Lookup(flagNameLoggingType))
}
