package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func AddAgentApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("agentUrl", "localhost:50051", "specify chimp agent url")
	_ = viper.BindPFlag("agentUrl", rootCmd.PersistentFlags().Lookup("agentUrl"))
	rootCmd.PersistentFlags().Bool("forceNoTls", false, "connect to the agent without TLS")
	_ = viper.BindPFlag("forceNoTls", rootCmd.PersistentFlags().Lookup("forceNoTls"))
}

// LoadCommandlineArgsFromConfigFile reads defaults from chimpctl-defaults.yaml next to the executable,
// then merges cfgFile, or ~/.chimpctl.yaml if cfgFile is empty. Missing files are not an error.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error finding executable path: %s", err)
	}
	viper.SetConfigFile(filepath.Join(filepath.Dir(exePath), "chimpctl-defaults.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
		case *os.PathError:
			// No default config is fine
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".chimpctl")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.MergeInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// This only occurs when looking for the default .chimpctl file and it is not present
			// This is not an error as users don't have to specify it, so do nothing
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

func ExtractCommandlineAgentApiConnectionDetails() *ApiConnectionDetails {
	apiConnectionDetails := &ApiConnectionDetails{}
	_ = viper.Unmarshal(apiConnectionDetails)
	return apiConnectionDetails
}
