package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v3"

	"github.com/starford/feathernotes/internal"
	pkgconfig "github.com/starford/feathernotes/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Args().Len() > 1 {
		return errors.New("at most one file may be given")
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithFile(cmd.Args().First()),
		internal.WithMCP(cmd.Bool("mcp")),
		internal.WithVersion(version),
		internal.WithStartMode(internal.StartMode{
			Minimized: cmd.Bool("min"),
			Tray:      cmd.Bool("tray"),
		}),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func password(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("password needs exactly one file")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := homedir.Expand(cmd.Args().First())
	if err != nil {
		return err
	}
	return internal.ChangePassword(ctx, cfg, path)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "~/.config/feathernotes/config.yaml",
		Value:       "~/.config/feathernotes/config.yaml",
		Sources:     cli.EnvVars("FN_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:      "feathernotes",
		Usage:     "Hierarchical rich-text notes in .fnx files",
		Version:   version,
		ArgsUsage: "[FILE]",
		Action:    run,
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:    "min",
				Aliases: []string{"m"},
				Usage:   "Start minimized",
			},
			&cli.BoolFlag{
				Name:    "tray",
				Aliases: []string{"t"},
				Usage:   "Start iconified to tray",
			},
			&cli.BoolFlag{
				Name:  "mcp",
				Usage: "Serve MCP tools on stdin/stdout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "password",
				Usage:     "Set or remove the password of a document",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{configFlag},
				Action:    password,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
