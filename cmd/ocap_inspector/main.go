package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// AppName prefixes log files and telemetry.
const AppName = "ocap_inspector"

const usage = `OCAP recording inspector.

Usage:
    ocap_inspector split <recording> <outdir> [--frames-per-chunk=<n>] [--compress] [--config=<dir>]
    ocap_inspector info <dir> [--config=<dir>]
    ocap_inspector publish <recording> [--tag=<tag>] [--config=<dir>]
    ocap_inspector frame <dir> <index> [--config=<dir>]
    ocap_inspector within <dir> <index> <area> [--config=<dir>]
    ocap_inspector path <dir> <entity> <from> <to> [--config=<dir>]
    ocap_inspector watch <dir> <from> <to> [--step=<delay>] [--config=<dir>]
    ocap_inspector serve <dir> [--listen=<addr>] [--config=<dir>]
    ocap_inspector comment add <dir> <frame> <text> [--entity=<id>] [--author=<name>] [--config=<dir>]
    ocap_inspector comment list <name> [--from=<frame>] [--to=<frame>] [--config=<dir>]
    ocap_inspector comment delete <id> [--config=<dir>]
    ocap_inspector comment backups [--config=<dir>]
    ocap_inspector -h | --help
    ocap_inspector --version

Options:
    -h --help                 Show this screen.
    --version                 Show version.
    --config=<dir>            Directory holding ocap_inspector.cfg.json [default: .].
    --frames-per-chunk=<n>    Frames per chunk file, overrides storage.framesPerChunk.
    --compress                Gzip chunk files.
    --tag=<tag>               Tag shown by the web frontend [default: Op].
    --step=<delay>            Pause between frames, with time units: ms, s, m [default: 0s].
    --listen=<addr>           Address to serve chunks on [default: :5001].
    --entity=<id>             Merged entity id the comment is about.
    --author=<name>           Comment author.
    --from=<frame>            First frame to list [default: 0].
    --to=<frame>              Last frame to list.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], fmt.Sprintf("%s (built %s)", Version, BuildDate))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configDir, _ := opts.String("--config")
	a, err := newApp(configDir, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = run(ctx, a, opts)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app, opts docopt.Opts) error {
	a.logger.Debug("Starting up", "version", Version, "buildDate", BuildDate)

	switch {
	case flag(opts, "split"):
		return a.split(ctx, opts)
	case flag(opts, "info"):
		return a.info(ctx, opts)
	case flag(opts, "publish"):
		return a.publish(ctx, opts)
	case flag(opts, "frame"):
		return a.frame(ctx, opts)
	case flag(opts, "within"):
		return a.within(ctx, opts)
	case flag(opts, "path"):
		return a.path(ctx, opts)
	case flag(opts, "watch"):
		return a.watch(ctx, opts)
	case flag(opts, "serve"):
		return a.serve(ctx, opts)
	case flag(opts, "comment"):
		return a.comment(ctx, opts)
	}
	return fmt.Errorf("no command given")
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}
