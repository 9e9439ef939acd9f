package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve     *ServeCommand
	Send      *SendCommand
	Status    *StatusCommand
	List      *ListCommand
	Record    *RecordCommand
	Allowlist *AllowlistCommand
	Live      *LiveCommand
	Purge     *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "visitrelay"
	parser.LongDescription = "Buffers visited hostnames locally and relays them to a personal tracking endpoint."

	cmds := &commands{
		Serve:     &ServeCommand{globals: &globals, version: version},
		Send:      &SendCommand{globals: &globals, version: version},
		Status:    &StatusCommand{globals: &globals, version: version},
		List:      &ListCommand{globals: &globals, version: version},
		Record:    &RecordCommand{globals: &globals, version: version},
		Allowlist: &AllowlistCommand{globals: &globals, version: version},
		Live:      &LiveCommand{globals: &globals, version: version},
		Purge:     &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Start the relay daemon", "Start the relay daemon: recurring send timer plus the local panel API.", cmds.Serve)
	parser.AddCommand("send", "Send buffered visits now", "Force a send of buffered visits, through the daemon when it is running.", cmds.Send)
	parser.AddCommand("status", "Show buffer and settings", "Show buffered visits per hostname, the last send and current settings.", cmds.Status)
	parser.AddCommand("list", "List buffered visits", "List buffered visits, newest first.", cmds.List)
	parser.AddCommand("record", "Record a navigation", "Record one navigation through the same gates the browser uses.", cmds.Record)
	parser.AddCommand("allowlist", "Show or edit the allowlist", "Show or edit the exact-hostname allowlist.", cmds.Allowlist)
	parser.AddCommand("live", "Show or toggle live mode", "Show or toggle live mode, which sends every recorded visit immediately.", cmds.Live)
	parser.AddCommand("purge", "Drop ALL buffered visits", "Drop ALL buffered visits without sending them. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("visitrelay %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
