package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iov-one/safeq"
	"golang.org/x/sync/errgroup"
)

func cmdServe(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Keep the queue of a Safe up to date and expose it over HTTP.

	GET    /queue                          current classified snapshot
	POST   /refresh                        refresh now and return the snapshot
	GET    /recovery                       state of the recovery queues
	POST   /transactions                   propose a transaction
	POST   /transactions/{id}/confirmations sign with the connected wallet
	POST   /dispatch                       execute one or many transactions
	DELETE /dispatch/{id}                  abandon a submission before broadcast
	GET    /events                         websocket stream of status changes
`)
		fl.PrintDefaults()
	}
	var (
		confFl   = fl.String("config", lookupEnv("SAFEQ_CONFIG", ""), "Path to the JSON configuration file.")
		listenFl = fl.String("listen", "", "Address to listen on. Overrides the configuration.")
		debugFl  = fl.Bool("debug", false, "Return full error details in API responses.")
	)
	fl.Parse(args)

	s, opts, err := loadSettings(*confFl)
	if err != nil {
		return err
	}
	if *listenFl != "" {
		s.Listen = *listenFl
	}
	logger, err := newLogger(os.Stderr, s.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = safeq.WithLogger(ctx, logger)

	n, err := startNode(ctx, s, opts, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	api := newServer(n.Coordinator, logger, *debugFl)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", s.Listen, "safe", s.Safe.Hex())
		return api.Listen(s.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		return api.ShutdownWithTimeout(5 * time.Second)
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
