package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tyemirov/certinstall/pkg/logging"
)

type contextKey string

const (
	contextKeyApplicationResources contextKey = "application-resources"

	defaultConfigFileName  = "config"
	defaultConfigFileType  = "yaml"
	defaultApplicationName = "certinstall"

	flagNameConfigFile  = "config"
	flagNameLoggingType = "logging-type"
	flagNameFirefox     = "firefox"
	flagNamePrivateKey  = "key"

	configKeyInstallLoggingType = "install.logging_type"
	configKeyInstallFirefox     = "install.firefox"
	configKeyInstallPrivateKey  = "install.private_key"

	logMessageFailedInitializeLogger = "failed to initialize logger"
	logMessageResolveUserConfigDir   = "resolve user config directory"
	logMessageCommandExecutionFailed = "command execution failed"
)

type applicationResources struct {
	configurationManager *viper.Viper
	loggingService       *logging.Service
	defaultConfigDirPath string
}

func (resources *applicationResources) updateLogger(loggingType string) error {
	normalizedType, err := logging.NormalizeType(loggingType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil && resources.loggingService.Type() == normalizedType {
		return nil
	}
	service, err := logging.NewService(normalizedType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil {
		_ = resources.loggingService.Sync()
	}
	resources.loggingService = service
	return nil
}

// Execute runs the CLI using the provided context and arguments, returning an exit code.
func Execute(ctx context.Context, arguments []string) int {
	initialService, err := logging.NewService(logging.TypeConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", logMessageFailedInitializeLogger, err)
		return 1
	}
	configurationManager := viper.New()
	configurationManager.SetEnvPrefix(strings.ToUpper(defaultApplicationName))
	configurationManager.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configurationManager.AutomaticEnv()

	userConfigDir, userConfigErr := os.UserConfigDir()
	if userConfigErr != nil {
		initialService.Error(logMessageResolveUserConfigDir, userConfigErr)
		return 1
	}
	applicationConfigDir := filepath.Join(userConfigDir, defaultApplicationName)

	configurationManager.SetDefault(configKeyInstallLoggingType, logging.TypeConsole)
	configurationManager.SetDefault(configKeyInstallFirefox, false)
	configurationManager.SetDefault(configKeyInstallPrivateKey, "")

	resources := &applicationResources{
		configurationManager: configurationManager,
		loggingService:       initialService,
		defaultConfigDirPath: applicationConfigDir,
	}
	if err := resources.updateLogger(configurationManager.GetString(configKeyInstallLoggingType)); err != nil {
		resources.loggingService = initialService
		resources.loggingService.Error(logMessageFailedInitializeLogger, err)
		return 1
	}
	defer func() {
		if resources.loggingService != nil {
			_ = resources.loggingService.Sync()
		}
	}()

	rootCommand := newRootCommand(resources)
	baseContext := context.WithValue(ctx, contextKeyApplicationResources, resources)
	rootCommand.SetContext(baseContext)
	rootCommand.SetArgs(arguments)

	if executionErr := rootCommand.Execute(); executionErr != nil {
		resources.loggingService.Error(logMessageCommandExecutionFailed, executionErr)
		return 1
	}

	return 0
}

func getApplicationResources(cmd *cobra.Command) (*applicationResources, error) {
	resources, found := cmd.Context().Value(contextKeyApplicationResources).(*applicationResources)
	if !found || resources == nil {
		return nil, errors.New("application resources are not attached to the command context")
	}
	return resources, nil
}

func loadConfigurationFile(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager
	configFilePath, flagErr := cmd.Flags().GetString(flagNameConfigFile)
	if flagErr != nil {
		return fmt.Errorf("read config flag: %w", flagErr)
	}
	if configFilePath != "" {
		configurationManager.SetConfigFile(configFilePath)
	} else {
		configurationManager.AddConfigPath(resources.defaultConfigDirPath)
		configurationManager.SetConfigName(defaultConfigFileName)
		configurationManager.SetConfigType(defaultConfigFileType)
	}
	if readErr := configurationManager.ReadInConfig(); readErr != nil {
		if _, notFound := readErr.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("read configuration: %w", readErr)
		}
	}
	return resources.updateLogger(configurationManager.GetString(configKeyInstallLoggingType))
}
