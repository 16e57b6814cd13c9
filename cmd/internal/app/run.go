package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/pflag"

	"affittochiaro/cmd/internal/auth/session"
)

const appName = "affittochiaro"

// command is one CLI subcommand. Every command also accepts the global
// flags registered by AddFlags.
type command struct {
	name    string
	args    string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, c *cmdEnv) error
}

type cmdEnv struct {
	app   *App
	flags *pflag.FlagSet
	in    io.Reader
	out   io.Writer
}

func commands() []command {
	return []command{
		statusCommand(),
		loginCommand(),
		registerCommand(),
		confirmCommand(),
		resendCommand(),
		logoutCommand(),
		resetPasswordCommand(),
		confirmResetCommand(),
		getCommand(),
		listenCommand(),
		sendCommand(),
	}
}

// Run is the CLI entrypoint used by cmd/affittochiaro. It returns an error
// instead of exiting so deferred cleanup always runs; errors wrapping
// ErrUsage mean the command line itself was wrong.
func Run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(out)
		return nil
	}

	cmd, ok := findCommand(args[0])
	if !ok {
		printUsage(out)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	fs := pflag.NewFlagSet(appName+" "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	AddFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printCommandHelp(out, cmd, fs)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	cfg, err := LoadConfig(fs)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.Log.Level, cfg.Log.Format)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	return cmd.run(ctx, &cmdEnv{app: a, flags: fs, in: in, out: out})
}

func findCommand(name string) (command, bool) {
	for _, c := range commands() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func isHelp(arg string) bool {
	return arg == "help" || arg == "-h" || arg == "--help"
}

func printUsage(out io.Writer) {
	_, _ = fmt.Fprintln(out, figure.NewFigure(appName, "cybermedium", true).String())
	_, _ = fmt.Fprintf(out, "Usage: %s <command> [flags]\n\nCommands:\n", appName)

	cmds := commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })
	for _, c := range cmds {
		_, _ = fmt.Fprintf(out, "  %-15s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintf(out, "\nRun '%s <command> --help' for the flags of a command.\n", appName)
}

func printCommandHelp(out io.Writer, c command, fs *pflag.FlagSet) {
	usage := strings.TrimSpace(fmt.Sprintf("%s %s [flags] %s", appName, c.name, c.args))
	_, _ = fmt.Fprintf(out, "%s\n\nUsage: %s\n\nFlags:\n%s", c.summary, usage, fs.FlagUsages())
}

// ErrorMessage renders err for the terminal: the localized message for
// authentication failures, the plain error otherwise.
func ErrorMessage(err error) string {
	var ae *session.AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
