// Package cli provides the command-line interface for uibridge.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/config"
	"github.com/devicelab-dev/uibridge/pkg/device"
	"github.com/devicelab-dev/uibridge/pkg/engine"
	"github.com/devicelab-dev/uibridge/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Workspace config file (config.yaml)",
		EnvVars: []string{"UIBRIDGE_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "devices",
		Usage:   "Device configuration INI file (overrides workspace config)",
		EnvVars: []string{"UIBRIDGE_DEVICES"},
	},
	&cli.IntFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Device index to operate on",
		Value:   -1,
		EnvVars: []string{"UIBRIDGE_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "server-url",
		Usage:   "Automation server URL override",
		EnvVars: []string{"UIBRIDGE_SERVER_URL"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"UIBRIDGE_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "uibridge",
		Usage:   "Device automation bridge for mobile UI testing",
		Version: Version,
		Description: `uibridge drives iOS and Android devices through an Appium-compatible
server, resolving elements by logical name with layered fallbacks.

Examples:
  uibridge -d 1 tap LoginButton
  uibridge -d 1 text UsernameField --set qa_user
  uibridge -d 1 wait Dashboard --timeout 10000
  uibridge -d 1 screenshot`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			devicesCommand,
			tapCommand,
			textCommand,
			waitCommand,
			screenshotCommand,
			mapCommand,
			hierarchyCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// appContext bundles the pieces every command action needs.
type appContext struct {
	cfg *config.Config
	log *zap.Logger
	eng *engine.Engine
}

// setup loads the workspace config, builds the logger and the engine,
// and loads the device configuration. Commands that touch a device call
// resolveDevice afterwards.
func setup(c *cli.Context) (*appContext, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	log := logger.New(logger.Options{
		Level:   level,
		LogFile: cfg.LogFile,
	})

	reg := device.NewRegistry(log)
	eng := engine.New(reg, log)

	devicePath := cfg.DeviceConfig
	if override := c.String("devices"); override != "" {
		devicePath = override
	}
	if devicePath == "" {
		return nil, fmt.Errorf("no device configuration file: set deviceConfig in config.yaml or pass --devices")
	}
	if err := eng.LoadConfiguration(devicePath); err != nil {
		return nil, fmt.Errorf("load device configuration: %w", err)
	}

	return &appContext{cfg: cfg, log: log, eng: eng}, nil
}

// resolveDevice picks the device index from the flag or the workspace
// default and opens its session.
func (a *appContext) resolveDevice(c *cli.Context) (int, error) {
	index := c.Int("device")
	if index < 0 {
		index = a.cfg.DefaultDevice
	}
	if _, ok := a.eng.Registry().Get(index); !ok {
		return 0, fmt.Errorf("device %d is not configured", index)
	}
	if err := a.eng.Init(index, c.String("server-url")); err != nil {
		return 0, fmt.Errorf("init device %d: %w", index, err)
	}
	return index, nil
}

func (a *appContext) close(index int) {
	if err := a.eng.Quit(index); err != nil {
		a.log.Warn("session close failed", zap.Int("device", index), zap.Error(err))
	}
	_ = a.log.Sync()
}
