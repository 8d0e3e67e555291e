// Package cmdline dispatches subcommands whose arguments are parsed with go-arg.
package cmdline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	arg "github.com/alexflint/go-arg"
)

// ErrHelp is returned by Dispatch when help was printed instead of running a command.
var ErrHelp = errors.New("help requested")

// Command binds a subcommand name to the struct its flags are parsed into.
type Command struct {
	Name     string
	Synopsis string
	Args     Handler
}

// Handler runs a command once its arguments are parsed.
type Handler interface {
	Handle() error
}

// Validator is optionally implemented by Args to reject flag combinations go-arg accepts.
type Validator interface {
	Validate() error
}

type commands []Command

func (cs commands) find(name string) (Command, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

func (cs commands) usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s COMMAND [ARGS]\n", program())
	fmt.Fprintln(w, "Commands:")
	row := func(name, synopsis string) { fmt.Fprintf(w, "  %-20s %s\n", name, synopsis) }
	for _, c := range cs {
		row(c.Name, c.Synopsis)
	}
	row("help [COMMAND]", "show help and exit")
}

func program() string {
	if len(os.Args) == 0 {
		return "program"
	}
	return filepath.Base(os.Args[0])
}

// Dispatch runs the command named by args[0]; args excludes the program name.
// "help" and "help COMMAND" print usage and return ErrHelp.
func Dispatch(w io.Writer, args []string, cmds ...Command) error {
	cs := commands(cmds)
	if len(args) == 0 {
		cs.usage(w)
		return errors.New("no command provided")
	}

	name, rest := args[0], args[1:]
	help := name == "help"
	if help {
		if len(rest) == 0 {
			cs.usage(w)
			return ErrHelp
		}
		name = rest[0]
	}

	cmd, ok := cs.find(name)
	if !ok {
		cs.usage(w)
		return fmt.Errorf("unknown command %s", name)
	}
	p, err := arg.NewParser(arg.Config{Program: program() + " " + name}, cmd.Args)
	if err != nil {
		return err
	}
	if help {
		p.WriteHelp(w)
		return ErrHelp
	}
	if err := parse(w, p, cmd.Args, rest); err != nil {
		return err
	}
	return cmd.Args.Handle()
}

func parse(w io.Writer, p *arg.Parser, args Handler, flags []string) error {
	err := p.Parse(flags)
	if err == arg.ErrHelp {
		p.WriteHelp(w)
		return ErrHelp
	}
	if err == nil {
		if v, ok := args.(Validator); ok {
			err = v.Validate()
		}
	}
	if err != nil {
		p.WriteUsage(w)
	}
	return err
}

// MustDispatch dispatches on os.Args and exits non-zero on failure.
func MustDispatch(cmds ...Command) {
	switch err := Dispatch(os.Stdout, os.Args[1:], cmds...); err {
	case nil:
	case ErrHelp:
		os.Exit(0)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
