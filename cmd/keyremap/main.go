// keyremap - keyboard and mouse remapping
//
//	keyremap run               Start remapping until interrupted
//	keyremap list              Show stored mappings
//	keyremap add -source f1 -target ctrl+c
//	keyremap remove <id>       Delete a mapping
//	keyremap toggle <id>       Enable or disable a mapping
//	keyremap check             Validate the stored mapping set
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

var version = "dev"

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// errUsage is returned for bad invocations; the message has already been
// printed.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:])
	case "list", "ls":
		err = cmdList(args[1:])
	case "add":
		err = cmdAdd(args[1:])
	case "remove", "rm":
		err = cmdRemove(args[1:])
	case "enable":
		err = cmdSetEnabled(args[1:], true)
	case "disable":
		err = cmdSetEnabled(args[1:], false)
	case "toggle":
		err = cmdToggle(args[1:])
	case "check":
		err = cmdCheck(args[1:])
	case "keys":
		cmdKeys()
	case "presets":
		cmdPresets()
	case "version":
		fmt.Fprintf(stdout, "keyremap %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		usage()
		return 1
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(stdout, `keyremap - Keyboard and Mouse Remapping

USAGE:
    keyremap <command> [options]

COMMANDS:
    run                 Install hooks and remap until interrupted
    list                Show stored mappings
    add                 Add a mapping
    remove <id>         Delete a mapping
    enable <id>         Enable a mapping
    disable <id>        Disable a mapping
    toggle <id>         Flip a mapping between enabled and disabled
    check               Validate the stored mappings without hooking input
    keys                List key and mouse button names
    presets             List mapping presets
    version             Print the version
    help                Show this help message

Every command accepts -config <path>. Ids may be abbreviated to any
unique prefix.

EXAMPLES:
    keyremap add -source f1 -target ctrl+c
    keyremap add -source mouse_middle -preset shift_arrow_turbo -stop escape
    keyremap add -source mouse_left -target mouse_left -turbo -loop -stop escape
    keyremap run -backend listener`)
}

// newFlagSet returns a flag set that reports errors instead of exiting, with
// the common -config flag registered.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default: "+defaultConfigHint()+")")
	return fs, configPath
}
