package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/batch"
	"github.com/iov-one/safeq/x/conflict"
	"github.com/iov-one/safeq/x/confirm"
	"github.com/iov-one/safeq/x/dispatch"
	"github.com/iov-one/safeq/x/multisig"
	"github.com/iov-one/safeq/x/pending"
	"github.com/iov-one/safeq/x/recovery"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Collaborators are the services a coordinator talks to. Relay, Signer and
// Recovery may be nil.
type Collaborators struct {
	Gateway  safeq.Gateway
	Chain    safeq.Chain
	Relay    safeq.Relay
	Signer   safeq.Signer
	Recovery recovery.Source
}

// Coordinator keeps the queue of a single Safe and executes it.
type Coordinator struct {
	safe    common.Address
	chainID uint64
	logger  log.Logger

	ledger     *Ledger
	tracker    pending.Tracker
	deps       Collaborators
	conf       Configuration
	batchConf  batch.Configuration
	dispatcher *dispatch.Dispatcher

	accounts *multisig.AccountBucket
	txs      *confirm.TransactionBucket

	refreshes singleflight.Group
	snapshot  atomic.Pointer[Snapshot]
	snapshots event.Feed
	events    event.Feed

	// pub serializes publishing, so that versions are delivered in order.
	pub     sync.Mutex
	version uint64

	mu sync.Mutex
	// reconcile holds submissions that timed out, by transaction
	// identity. The value is the broadcast hash, if known.
	reconcile map[common.Hash]common.Hash

	results   chan dispatch.Result
	resultSub event.Subscription
	wg        sync.WaitGroup
}

// NewCoordinator returns a coordinator of given Safe. The configuration of
// all extensions is loaded from the store.
func NewCoordinator(
	db safeq.CacheableKVStore,
	safe common.Address,
	chainID uint64,
	tracker pending.Tracker,
	deps Collaborators,
	logger log.Logger,
) (*Coordinator, error) {
	if deps.Gateway == nil || deps.Chain == nil {
		return nil, errors.Wrap(errors.ErrInput, "gateway and chain are required")
	}
	ledger, err := NewLedger(db, safe, chainID)
	if err != nil {
		return nil, err
	}

	var (
		conf         Configuration
		batchConf    batch.Configuration
		dispatchConf dispatch.Configuration
	)
	err = ledger.View(func(db safeq.ReadOnlyKVStore) error {
		var err error
		if conf, err = LoadConfig(db); err != nil {
			return err
		}
		if batchConf, err = batch.LoadConfig(db); err != nil {
			return err
		}
		dispatchConf, err = dispatch.LoadConfig(db)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		safe:       safe,
		chainID:    chainID,
		logger:     logger.With("module", "app", "safe", safe.Hex()),
		ledger:     ledger,
		tracker:    tracker,
		deps:       deps,
		conf:       conf,
		batchConf:  batchConf,
		dispatcher: dispatch.NewDispatcher(deps.Chain, deps.Relay, tracker, dispatchConf, batchConf),
		accounts:   multisig.NewAccountBucket(),
		txs:        confirm.NewTransactionBucket(),
		reconcile:  make(map[common.Hash]common.Hash),
		results:    make(chan dispatch.Result, 16),
	}
	c.resultSub = c.dispatcher.SubscribeResults(c.results)
	c.wg.Add(1)
	go c.handleResults()
	return c, nil
}

// Close waits for all submissions to finish being watched and stops the
// coordinator.
func (c *Coordinator) Close() {
	c.dispatcher.Close()
	c.resultSub.Unsubscribe()
	c.wg.Wait()
}

// Snapshot returns the last published snapshot. It is nil until the first
// refresh succeeded.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// SubscribeSnapshots delivers every published snapshot. A subscriber that
// does not keep up blocks publishing.
func (c *Coordinator) SubscribeSnapshots(ch chan<- *Snapshot) event.Subscription {
	return c.snapshots.Subscribe(ch)
}

// SubscribeEvents delivers status changes and finished submissions.
func (c *Coordinator) SubscribeEvents(ch chan<- Event) event.Subscription {
	return c.events.Subscribe(ch)
}

// Run refreshes the queue periodically until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.conf.RefreshInterval())
	defer ticker.Stop()
	for {
		if _, err := c.Refresh(ctx); err != nil {
			c.logger.Error("refresh", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh reads the gateway queue and the account state, merges them into
// the ledger and publishes a new snapshot. Concurrent calls share a single
// refresh.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.refreshes.Do("refresh", func() (interface{}, error) {
		return c.refresh(safeq.WithLogger(ctx, c.logger))
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Coordinator) refresh(ctx context.Context) (*Snapshot, error) {
	remote, queue, err := c.read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	subs, err := c.tracker.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pending submissions")
	}
	inFlight := make(map[common.Hash]struct{}, len(subs))
	for _, s := range subs {
		inFlight[s.ID] = struct{}{}
	}
	mined := c.checkReconcile(ctx)

	var (
		merged *confirm.MergeResult
		snap   *Snapshot
		events []Event
	)
	err = c.ledger.Update(func(db safeq.KVStore) error {
		a := remote
		if _, err := c.accounts.Sync(db, a); err != nil {
			if !errors.ErrState.Is(err) {
				return err
			}
			c.logger.Info("lagging node", "err", err)
			if a, err = c.accounts.GetAccount(db, c.safe); err != nil {
				return err
			}
		}

		var err error
		merged, err = confirm.Merge(db, a, queue, func(id common.Hash) bool {
			_, ok := inFlight[id]
			return ok
		})
		if err != nil {
			return errors.Wrap(err, "merge")
		}
		events = statusEvents(merged.Changes)

		ids := make([]common.Hash, 0, len(mined))
		for id := range mined {
			ids = append(ids, id)
		}
		applied, err := c.applySuccess(db, ids, func(id common.Hash) common.Hash { return mined[id] })
		if err != nil {
			return err
		}
		events = append(events, applied...)
		c.dropReconciled(db, a, mined)

		snap, err = classify(db, a, c.signer(), unsettled(subs, merged.Settled), c.batchConf.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(merged.Settled) > 0 {
		if err := c.tracker.Release(ctx, merged.Settled...); err != nil {
			c.logger.Error("release settled submissions", "err", err)
		}
	}
	for _, id := range merged.Rejected {
		c.logger.Info("gateway entry rejected, identity does not match its payload", "id", id.Hex())
	}
	snap.Rejected = merged.Rejected
	c.publish(ctx, snap, events)
	return snap, nil
}

// read fetches the queue and the account state concurrently.
func (c *Coordinator) read(ctx context.Context) (*safeq.Account, []safeq.Transaction, error) {
	a := &safeq.Account{Address: c.safe, ChainID: c.chainID}
	var queue []safeq.Transaction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.retry(gctx, "queue", func() (err error) {
			queue, err = c.deps.Gateway.Queue(gctx, c.safe)
			return err
		})
	})
	g.Go(func() error {
		return c.retry(gctx, "nonce", func() (err error) {
			a.Nonce, err = c.deps.Chain.Nonce(gctx, c.safe)
			return err
		})
	})
	g.Go(func() error {
		return c.retry(gctx, "owners", func() (err error) {
			a.Owners, err = c.deps.Chain.Owners(gctx, c.safe)
			return err
		})
	})
	g.Go(func() error {
		return c.retry(gctx, "threshold", func() (err error) {
			a.Threshold, err = c.deps.Chain.Threshold(gctx, c.safe)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "account")
	}
	return a, queue, nil
}

// retry calls op until it succeeds, it fails with a permanent error or the
// retries are exhausted. Only use it for idempotent reads. A panic of a
// collaborator is returned as ErrPanic and not retried.
func (c *Coordinator) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.conf.RetryInterval()
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.conf.ReadRetries), ctx)

	return backoff.RetryNotify(func() (err error) {
		defer func() {
			if err != nil && !retriable(err) {
				err = backoff.Permanent(err)
			}
		}()
		defer errors.Recover(&err)
		return op()
	}, policy, func(err error, next time.Duration) {
		safeq.GetLogger(ctx).Debug("retry read", "read", name, "next", next, "err", err)
	})
}

// retriable returns false for errors that repeating the request cannot fix.
func retriable(err error) bool {
	for _, e := range []*errors.Error{
		errors.ErrNotFound,
		errors.ErrInput,
		errors.ErrValidation,
		errors.ErrUnauthorized,
		errors.ErrPanic,
	} {
		if e.Is(err) {
			return false
		}
	}
	return true
}

// checkReconcile looks for receipts of timed out submissions. It returns
// the identities that were executed with the hash that executed them.
func (c *Coordinator) checkReconcile(ctx context.Context) map[common.Hash]common.Hash {
	c.mu.Lock()
	todo := make(map[common.Hash]common.Hash, len(c.reconcile))
	for id, hash := range c.reconcile {
		todo[id] = hash
	}
	c.mu.Unlock()

	mined := make(map[common.Hash]common.Hash)
	for id, hash := range todo {
		if hash == (common.Hash{}) {
			continue
		}
		r, err := c.deps.Chain.TransactionReceipt(ctx, hash)
		switch {
		case err != nil:
			c.logger.Debug("reconcile receipt", "hash", hash.Hex(), "err", err)
		case r == nil:
		case r.Success:
			mined[id] = hash
		default:
			c.forgetReconcile(id)
		}
	}
	return mined
}

// dropReconciled forgets timed out submissions that were mined or whose
// nonce was used by the chain in the meantime.
func (c *Coordinator) dropReconciled(db safeq.ReadOnlyKVStore, a *safeq.Account, mined map[common.Hash]common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.reconcile {
		if _, ok := mined[id]; ok {
			delete(c.reconcile, id)
			continue
		}
		t, err := c.txs.GetTransaction(db, id)
		if err != nil || t.Nonce() < a.Nonce {
			delete(c.reconcile, id)
		}
	}
}

func (c *Coordinator) forgetReconcile(ids ...common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.reconcile, id)
	}
}

// applySuccess marks given transactions as executed and replaces their
// siblings. Transactions that left the queue or whose nonce was executed by
// another transaction are skipped.
func (c *Coordinator) applySuccess(db safeq.KVStore, ids []common.Hash, hashOf func(common.Hash) common.Hash) ([]Event, error) {
	var events []Event
	for _, id := range ids {
		winner, err := c.txs.GetTransaction(db, id)
		switch {
		case errors.ErrNotFound.Is(err):
			continue
		case err != nil:
			return nil, err
		case winner.Status == safeq.StatusSuccess:
			continue
		}
		siblings, err := c.txs.ByNonce(db, winner.Nonce())
		if err != nil {
			return nil, err
		}
		prev := make(map[common.Hash]safeq.Status, len(siblings))
		for _, s := range siblings {
			prev[s.ID] = s.Status
		}

		replaced, err := conflict.ApplySuccess(db, id, hashOf(id))
		switch {
		case errors.ErrConflict.Is(err):
			c.logger.Error("execution of an already executed nonce", "id", id.Hex(), "err", err)
			continue
		case err != nil:
			return nil, err
		}
		events = append(events, Event{Type: EventStatus, ID: id, From: prev[id], To: safeq.StatusSuccess})
		for _, r := range replaced {
			events = append(events, Event{Type: EventStatus, ID: r, From: prev[r], To: safeq.StatusWillBeReplaced})
		}
	}
	return events, nil
}

// reclassify publishes a new snapshot from the stored state, without
// reading from the network.
func (c *Coordinator) reclassify(ctx context.Context, events []Event) error {
	subs, err := c.tracker.List(ctx)
	if err != nil {
		return errors.Wrap(err, "pending submissions")
	}
	var snap *Snapshot
	err = c.ledger.View(func(db safeq.ReadOnlyKVStore) error {
		a, err := c.accounts.GetAccount(db, c.safe)
		if err != nil {
			return err
		}
		snap, err = classify(db, a, c.signer(), subs, c.batchConf.Limit)
		return err
	})
	if err != nil {
		return err
	}
	if prev := c.Snapshot(); prev != nil {
		snap.Rejected = prev.Rejected
	}
	c.publish(ctx, snap, events)
	return nil
}

func (c *Coordinator) publish(ctx context.Context, snap *Snapshot, events []Event) {
	c.pub.Lock()
	defer c.pub.Unlock()
	c.version++
	snap.Version = c.version
	snap.At = safeq.AsUnixTime(safeq.Now(ctx))
	c.snapshot.Store(snap)
	for _, e := range events {
		c.events.Send(e)
	}
	c.snapshots.Send(snap)
}

func (c *Coordinator) signer() common.Address {
	if c.deps.Signer == nil {
		return common.Address{}
	}
	return c.deps.Signer.Address()
}

// unsettled returns the submissions that are not settled.
func unsettled(subs []pending.Submission, settled []common.Hash) []pending.Submission {
	if len(settled) == 0 {
		return subs
	}
	done := make(map[common.Hash]struct{}, len(settled))
	for _, id := range settled {
		done[id] = struct{}{}
	}
	res := make([]pending.Submission, 0, len(subs))
	for _, s := range subs {
		if _, ok := done[s.ID]; !ok {
			res = append(res, s)
		}
	}
	return res
}
