package main

import (
	"context"
	"io"
	"strings"

	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/app"
	"github.com/iov-one/safeq/client"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/store"
	"github.com/iov-one/safeq/x/pending"
	"github.com/redis/go-redis/v9"
	"github.com/tendermint/tendermint/libs/log"
)

// newLogger returns a structured logger writing to out and filtered by
// given level.
func newLogger(out io.Writer, level string) (log.Logger, error) {
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return log.NewFilter(log.NewTMLogger(log.NewSyncWriter(out)), opt), nil
}

// node is a coordinator together with the resources it owns.
type node struct {
	*app.Coordinator
	closers []func() error
}

// Close stops the coordinator and releases all connections.
func (n *node) Close() error {
	if n.Coordinator != nil {
		n.Coordinator.Close()
	}
	var errs error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = errors.Append(errs, n.closers[i]())
	}
	return errs
}

// startNode connects to all services described by the settings and returns
// a coordinator of the configured Safe.
func startNode(ctx context.Context, s settings, opts safeq.Options, logger log.Logger) (_ *node, err error) {
	db := store.MemStore()
	if err := app.InitConfigs(db, opts); err != nil {
		return nil, errors.Wrap(err, "configuration")
	}

	n := &node{}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	chain, err := client.Dial(ctx, s.RPC)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, func() error { chain.Close(); return nil })
	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if chainID != s.ChainID {
		return nil, errors.Wrapf(errors.ErrInput, "node serves chain %d, not %d", chainID, s.ChainID)
	}

	deps := app.Collaborators{
		Gateway:  client.NewGateway(strings.TrimSuffix(s.Gateway, "/")),
		Chain:    chain,
		Recovery: chain,
	}
	if s.Relay != "" {
		deps.Relay = client.NewRelay(strings.TrimSuffix(s.Relay, "/"), s.RelayKey)
	}
	if s.PrivateKey != "" {
		signer, err := client.LoadKeySigner(s.PrivateKey, chain)
		if err != nil {
			return nil, errors.Field("PrivateKey", err, "signer")
		}
		deps.Signer = signer
		logger.Info("wallet connected", "address", signer.Address().Hex())
	}

	tracker, closeTracker, err := newTracker(ctx, db, s.Redis)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, closeTracker)

	if n.Coordinator, err = app.NewCoordinator(db, s.Safe, s.ChainID, tracker, deps, logger); err != nil {
		return nil, err
	}
	return n, nil
}

// newTracker returns a tracker shared through redis if an URL is given, or
// kept in memory otherwise. The returned function releases the connection.
func newTracker(ctx context.Context, db safeq.ReadOnlyKVStore, redisURL string) (pending.Tracker, func() error, error) {
	conf, err := pending.LoadConfig(db)
	if err != nil {
		return nil, nil, err
	}
	if redisURL == "" {
		return pending.NewMemTracker(conf), func() error { return nil }, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, errors.Field("Redis", errors.ErrInput, "%s", err)
	}
	rc := redis.NewClient(opt)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, errors.Wrapf(errors.ErrNetwork, "redis: %s", err)
	}
	return pending.NewRedisTracker(rc, conf), rc.Close, nil
}
