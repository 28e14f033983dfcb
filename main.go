package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/drone/drone-html-junit/plugin"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	args, err := loadArgs(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.WithError(err).Fatal("failed to read plugin settings")
	}

	setLogLevel(args.Level)

	if err := plugin.ValidateInputs(args); err != nil {
		logrus.WithError(err).Fatal("invalid plugin settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := plugin.Exec(ctx, args); err != nil {
		logrus.WithError(err).Error("conversion failed")
		stop()
		os.Exit(1)
	}
}

// loadArgs reads the PLUGIN_* environment, then applies command line flags.
// --reports-path takes precedence over PLUGIN_REPORTS_PATH.
func loadArgs(argv []string) (plugin.Args, error) {
	var args plugin.Args
	if err := envconfig.Process("", &args); err != nil {
		return args, err
	}

	flags := pflag.NewFlagSet("drone-html-junit", pflag.ContinueOnError)
	flags.StringVarP(&args.ReportsPath, "reports-path", "p", args.ReportsPath, "The path to search for reports files")
	if err := flags.Parse(argv); err != nil {
		return args, err
	}
	return args, nil
}

func setLogLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("Level", level).Warn("unknown log level, keeping info")
		return
	}
	logrus.SetLevel(lvl)
}
