package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/chimp/internal/chimp"
	"github.com/G-Research/chimp/internal/chimp/configuration"
	"github.com/G-Research/chimp/internal/common"
	"github.com/G-Research/chimp/internal/common/health"
	"github.com/G-Research/chimp/internal/common/logging"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.ChimpConfig
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/chimp", userSpecifiedConfigs)

	log.Info("Starting...")
	log.Infof("Config %+v", config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := health.NewMultiChecker()
	if err := chimp.Serve(ctx, &config, healthChecks); err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Chimp agent failed")
		os.Exit(1)
	}
}
