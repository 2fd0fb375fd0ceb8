package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/iov-one/safeq"
)

// commands is a register of all available commands that can be executed by
// this program. The name is used to match with the first argument given.
//
// A command function is given stdin, stdout and the command line arguments
// without the program name and the command name. It is responsible for
// parsing the arguments with the flag package. Logs and error messages go to
// os.Stderr.
//
// Every command reads the same configuration file, pointed to by the -config
// flag or the SAFEQ_CONFIG variable. One shot commands connect, refresh the
// queue once and print the result as JSON:
//
//	$ safeq queue -config safe.json | jq '.flags'
//	$ safeq execute -config safe.json -method relay -wait 0x5c1f...
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"batch":    cmdBatch,
	"execute":  cmdExecute,
	"queue":    cmdQueue,
	"recovery": cmdRecovery,
	"serve":    cmdServe,
	"version":  cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s coordinates the transaction queue of a Safe.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	// Skip two first arguments. Second argument is the command name that
	// we just consumed.
	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(input io.Reader, output io.Writer, args []string) error {
	fmt.Fprintln(output, safeq.Version())
	return nil
}

// lookupEnv returns the value of an environment variable if provided (even if
// empty) or a fallback value.
func lookupEnv(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}
