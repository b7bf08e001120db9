package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/groboclown/p4ic4idea-sub032/internal/logger"
	"github.com/groboclown/p4ic4idea-sub032/pkg/config"
)

const usage = `p4rpc - Perforce RPC diagnostics

Usage:
  p4rpc <command> [flags] [args]

Commands:
  probe        Dial a server with the configured tuning and report the socket
  interpolate  Render a server message template
  classify     Print how field names are converted (TEXT or BINARY)
  decode       Decode captured RPC frames
  transcode    Convert a byte stream in a Perforce charset to UTF-8
  charsets     List the built-in charsets
  init         Write the default configuration file

Run 'p4rpc <command> -h' for command flags.
`

type command func(args []string) error

var commands = map[string]command{
	"probe":       runProbe,
	"interpolate": runInterpolate,
	"classify":    runClassify,
	"decode":      runDecode,
	"transcode":   runTranscode,
	"charsets":    runCharsets,
	"init":        runInit,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Print(usage)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := cmd(os.Args[2:]); err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "p4rpc %s: %v\n", name, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies its logging section.
func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutputPath(cfg.Logging.Output); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded level=%s format=%s output=%s",
		cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	return cfg, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("path", "", "Write to this path instead of the default location")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}
