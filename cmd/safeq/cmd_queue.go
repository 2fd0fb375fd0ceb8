package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/dispatch"
)

// connect loads the configuration, starts a node and refreshes its queue
// once.
func connect(ctx context.Context, confPath string) (*node, error) {
	s, opts, err := loadSettings(confPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(os.Stderr, s.LogLevel)
	if err != nil {
		return nil, err
	}
	n, err := startNode(safeq.WithLogger(ctx, logger), s, opts, logger)
	if err != nil {
		return nil, err
	}
	if _, err := n.Refresh(ctx); err != nil {
		_ = n.Close()
		return nil, errors.Wrap(err, "refresh")
	}
	return n, nil
}

func writeJSON(output io.Writer, v interface{}) error {
	pretty, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("cannot JSON serialize: %s", err)
	}
	_, err = fmt.Fprintln(output, string(pretty))
	return err
}

func cmdQueue(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the classified queue of the Safe: nonce groups, flags for the connected
wallet, the batch that can be executed and the pending submissions.
`)
		fl.PrintDefaults()
	}
	confFl := fl.String("config", lookupEnv("SAFEQ_CONFIG", ""), "Path to the JSON configuration file.")
	fl.Parse(args)

	n, err := connect(context.Background(), *confFl)
	if err != nil {
		return err
	}
	defer n.Close()
	return writeJSON(output, n.Snapshot())
}

func cmdBatch(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the identities of the transactions that can be executed together, one
per line. Nothing is printed if no batch is available. The output can be
given to the execute command.
`)
		fl.PrintDefaults()
	}
	confFl := fl.String("config", lookupEnv("SAFEQ_CONFIG", ""), "Path to the JSON configuration file.")
	fl.Parse(args)

	n, err := connect(context.Background(), *confFl)
	if err != nil {
		return err
	}
	defer n.Close()

	snap := n.Snapshot()
	if !snap.IsBatchable() {
		return nil
	}
	for _, id := range snap.Batch {
		fmt.Fprintln(output, id.Hex())
	}
	return nil
}

func cmdRecovery(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the state and the warnings of every recovery queued in the configured
delay modifiers.
`)
		fl.PrintDefaults()
	}
	confFl := fl.String("config", lookupEnv("SAFEQ_CONFIG", ""), "Path to the JSON configuration file.")
	fl.Parse(args)

	ctx := context.Background()
	n, err := connect(ctx, *confFl)
	if err != nil {
		return err
	}
	defer n.Close()

	entries, err := n.Recovery(ctx)
	if err != nil {
		return err
	}
	return writeJSON(output, entries)
}

func cmdExecute(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Execute transactions of the queue. Identities are given as arguments or read
from the input, one per line. More than one identity executes a batch.

	$ safeq batch -config safe.json | safeq execute -config safe.json -wait
`)
		fl.PrintDefaults()
	}
	var (
		confFl   = fl.String("config", lookupEnv("SAFEQ_CONFIG", ""), "Path to the JSON configuration file.")
		methodFl = fl.String("method", "relay", "Execution method: relay or direct.")
		waitFl   = fl.Bool("wait", false, "Wait until the submission is mined.")
	)
	fl.Parse(args)

	method, err := dispatch.ParseMethod(*methodFl)
	if err != nil {
		flagDie("%s", err)
	}
	ids, err := readIDs(input, fl.Args())
	if err != nil {
		return err
	}

	ctx := context.Background()
	n, err := connect(ctx, *confFl)
	if err != nil {
		return err
	}
	defer n.Close()

	h, err := n.Dispatch(ctx, ids, method)
	if err != nil {
		return err
	}
	if !*waitFl {
		return writeJSON(output, dispatchResponse{BatchID: h.BatchID, IDs: h.IDs, TxHash: h.TxHash})
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	if err := writeJSON(output, res); err != nil {
		return err
	}
	return res.Err
}

// readIDs returns the identities given as arguments or, if there are none,
// read from the input.
func readIDs(input io.Reader, args []string) ([]common.Hash, error) {
	if len(args) == 0 {
		raw, err := io.ReadAll(input)
		if err != nil {
			return nil, fmt.Errorf("cannot read input: %s", err)
		}
		args = strings.Fields(string(raw))
	}
	if len(args) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "no transaction to execute")
	}
	ids := make([]common.Hash, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// flagDie terminates the program when a flag has an invalid value.
func flagDie(description string, args ...interface{}) {
	msg := fmt.Sprintf(description, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
