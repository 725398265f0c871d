package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/attach"
	"github.com/danmuck/nbdctl/internal/hostenv"
	"github.com/danmuck/nbdctl/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("nbdctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	foreground := fs.Bool("f", false, "stay in the foreground and tear down on interrupt")
	quiet := fs.Bool("q", false, "machine-parsable output: print only the device node")
	logPath := fs.String("l", "", "backend log file (default: temp file in daemon mode, stderr in foreground)")
	deviceNode := fs.String("d", "", "device node to bind (default: first free /dev/nbdN)")
	killScript := fs.String("k", "", "teardown script path (default derived from the device node)")
	socketPath := fs.String("u", "", "rendezvous socket path (default: private temp path)")
	configPath := fs.String("c", "", "TOML config file with defaults")
	statusAddr := fs.String("status-addr", "", "serve /health, /session and /metrics on this address (foreground only)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: nbdctl [flags] backend [backend args...]\n\n")
		fmt.Fprintf(fs.Output(), "Attaches an nbd device node to a storage backend process.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return attach.ExitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return attach.ExitUsage
	}

	if *quiet {
		logging.ConfigureQuiet()
	} else {
		logging.ConfigureRuntime()
	}

	opts := attach.Options{
		Foreground:  *foreground,
		Quiet:       *quiet,
		DeviceNode:  *deviceNode,
		LogPath:     *logPath,
		SocketPath:  *socketPath,
		ScriptPath:  *killScript,
		StatusAddr:  *statusAddr,
		Backend:     rest[0],
		BackendArgs: rest[1:],
	}

	if *configPath != "" {
		defaults, err := loadDefaults(*configPath)
		if err != nil {
			log.Error().Err(err).Str("path", *configPath).Msg("config file")
			return attach.ExitUsage
		}
		applyDefaults(&opts, defaults, setFlags(fs))
	}

	if !hostenv.RunningAsRoot() {
		code, err := hostenv.ReexecWithSudo(os.Args)
		if err != nil {
			log.Error().Err(err).Msg("privilege elevation failed")
			return attach.ExitUsage
		}
		return code
	}

	if err := attach.Run(context.Background(), opts); err != nil {
		log.Error().Err(err).Msg("attach failed")
		return attach.ExitCode(err)
	}
	return attach.ExitOK
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
