package app

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/confirm"
	"github.com/iov-one/safeq/x/dispatch"
	"github.com/iov-one/safeq/x/executable"
	"github.com/iov-one/safeq/x/recovery"
	"github.com/iov-one/safeq/x/sigs"
)

// Propose signs a new transaction with the connected wallet, sends it to the
// gateway and stores it in the ledger.
func (c *Coordinator) Propose(ctx context.Context, tx safeq.SafeTx) (*safeq.Transaction, error) {
	ctx = safeq.WithLogger(ctx, c.logger)
	signer, a, err := c.ownerAndAccount(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.Nonce < a.Nonce {
		return nil, errors.Field("Nonce", errors.ErrValidation, "stale, account nonce is %d", a.Nonce)
	}

	id := sigs.SafeTxHash(c.chainID, c.safe, tx)
	sig, err := signer.SignMessage(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	if err := sigs.Verify(id, signer.Address(), sig); err != nil {
		return nil, errors.Wrap(err, "wallet signature")
	}

	now := safeq.AsUnixTime(safeq.Now(ctx))
	t := &safeq.Transaction{
		ID:          id,
		Safe:        c.safe,
		Tx:          tx.Copy(),
		SubmittedAt: now,
		Proposer:    signer.Address(),
		Confirmations: []safeq.Confirmation{
			{Owner: signer.Address(), Signature: sig, SubmittedAt: now},
		},
	}
	err = c.deps.Gateway.Propose(ctx, c.safe, safeq.Proposal{
		Tx:        t.Tx,
		ID:        id,
		Proposer:  t.Proposer,
		Signature: sig,
	})
	if err != nil {
		return nil, errors.Wrap(err, "gateway")
	}

	var stored *safeq.Transaction
	err = c.ledger.Update(func(db safeq.KVStore) error {
		if err := confirm.Propose(db, a, t); err != nil {
			return err
		}
		var err error
		stored, err = c.txs.GetTransaction(db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("proposed", "id", id.Hex(), "nonce", tx.Nonce)

	event := Event{Type: EventStatus, ID: id, To: stored.Status}
	if err := c.reclassify(ctx, []Event{event}); err != nil {
		c.logger.Error("reclassify", "err", err)
	}
	return stored, nil
}

// Sign confirms a queued transaction with the connected wallet. Signing a
// transaction that the wallet owner already confirmed is a noop.
func (c *Coordinator) Sign(ctx context.Context, id common.Hash) error {
	ctx = safeq.WithLogger(ctx, c.logger)
	signer, a, err := c.ownerAndAccount(ctx)
	if err != nil {
		return err
	}

	var t *safeq.Transaction
	err = c.ledger.View(func(db safeq.ReadOnlyKVStore) error {
		var err error
		t, err = c.txs.GetTransaction(db, id)
		return err
	})
	switch {
	case err != nil:
		return err
	case t.HasConfirmed(signer.Address()):
		return nil
	case !executable.Signable(t, a, signer.Address()):
		return errors.Wrapf(errors.ErrState, "transaction is %s", t.Status)
	}

	sig, err := signer.SignMessage(ctx, id)
	if err != nil {
		return errors.Wrap(err, "sign")
	}
	if err := sigs.Verify(id, signer.Address(), sig); err != nil {
		return errors.Wrap(err, "wallet signature")
	}
	if err := c.deps.Gateway.Confirm(ctx, id, sig); err != nil {
		return errors.Wrap(err, "gateway")
	}

	var after *safeq.Transaction
	now := safeq.AsUnixTime(safeq.Now(ctx))
	err = c.ledger.Update(func(db safeq.KVStore) error {
		if _, err := confirm.RecordConfirmation(db, a, id, signer.Address(), sig, now); err != nil {
			return err
		}
		var err error
		after, err = c.txs.GetTransaction(db, id)
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Info("confirmed", "id", id.Hex(), "owner", signer.Address().Hex())

	var events []Event
	if after.Status != t.Status {
		events = append(events, Event{Type: EventStatus, ID: id, From: t.Status, To: after.Status})
	}
	if err := c.reclassify(ctx, events); err != nil {
		c.logger.Error("reclassify", "err", err)
	}
	return nil
}

// Dispatch executes given transactions, ordered by nonce. More than one
// transaction is executed as a batch. The outcome is published as an event
// once known.
func (c *Coordinator) Dispatch(ctx context.Context, ids []common.Hash, method dispatch.Method) (*dispatch.Handle, error) {
	ctx = safeq.WithLogger(ctx, c.logger)
	if len(ids) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "no transactions")
	}

	req := dispatch.Request{Method: method, Signer: c.deps.Signer}
	err := c.ledger.View(func(db safeq.ReadOnlyKVStore) error {
		a, err := c.accounts.GetAccount(db, c.safe)
		if err != nil {
			return err
		}
		req.Account = a
		requested := make(map[common.Hash]struct{}, len(ids))
		for _, id := range ids {
			requested[id] = struct{}{}
		}
		for _, id := range ids {
			t, err := c.txs.GetTransaction(db, id)
			if err != nil {
				return err
			}
			req.Txs = append(req.Txs, t)

			siblings, err := c.txs.ByNonce(db, t.Nonce())
			if err != nil {
				return err
			}
			for _, s := range siblings {
				if _, ok := requested[s.ID]; !ok {
					req.Siblings = append(req.Siblings, s.ID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(req.Txs, func(i, j int) bool {
		return req.Txs[i].Nonce() < req.Txs[j].Nonce()
	})

	h, err := c.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.reclassify(ctx, nil); err != nil {
		c.logger.Error("reclassify", "err", err)
	}
	return h, nil
}

// Abandon cancels a submission that was not broadcast yet.
func (c *Coordinator) Abandon(ctx context.Context, id common.Hash) error {
	return c.dispatcher.Abandon(safeq.WithLogger(ctx, c.logger), id)
}

// Recovery evaluates the queues of all configured delay modifiers.
func (c *Coordinator) Recovery(ctx context.Context) ([]recovery.Entry, error) {
	ctx = safeq.WithLogger(ctx, c.logger)
	if c.deps.Recovery == nil || len(c.conf.RecoveryModules) == 0 {
		return nil, nil
	}

	var items []recovery.QueueItem
	for _, m := range c.conf.RecoveryModules {
		var q []recovery.QueueItem
		err := c.retry(ctx, "recovery queue", func() (err error) {
			q, err = c.deps.Recovery.RecoveryQueue(ctx, m)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "recovery queue of %s", m.Hex())
		}
		items = append(items, q...)
	}
	if len(items) == 0 {
		return nil, nil
	}

	since := items[0].CreatedAt
	for _, it := range items[1:] {
		if it.CreatedAt < since {
			since = it.CreatedAt
		}
	}
	history, err := recovery.ScanHistory(ctx, c.deps.Gateway, c.safe, since, c.conf.HistoryPages)
	if err != nil {
		return nil, err
	}
	return recovery.Evaluate(items, history, safeq.AsUnixTime(safeq.Now(ctx))), nil
}

// ownerAndAccount returns the connected wallet and the stored account. The
// wallet must belong to an owner.
func (c *Coordinator) ownerAndAccount(ctx context.Context) (safeq.Signer, *safeq.Account, error) {
	signer := c.deps.Signer
	if signer == nil {
		return nil, nil, errors.Wrap(errors.ErrInput, "no wallet connected")
	}
	a, err := c.account(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !a.IsOwner(signer.Address()) {
		return nil, nil, errors.Wrapf(errors.ErrValidation, "%s is not an owner", signer.Address().Hex())
	}
	return signer, a, nil
}

// account returns the stored account, refreshing first if nothing was
// stored yet.
func (c *Coordinator) account(ctx context.Context) (*safeq.Account, error) {
	var a *safeq.Account
	err := c.ledger.View(func(db safeq.ReadOnlyKVStore) error {
		var err error
		a, err = c.accounts.GetAccount(db, c.safe)
		return err
	})
	if !errors.ErrNotFound.Is(err) {
		return a, err
	}
	snap, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Account.Copy(), nil
}

// handleResults applies the outcome of finished submissions.
func (c *Coordinator) handleResults() {
	defer c.wg.Done()
	for {
		select {
		case res := <-c.results:
			c.onResult(res)
		case <-c.resultSub.Err():
			return
		}
	}
}

func (c *Coordinator) onResult(res dispatch.Result) {
	ctx := safeq.WithLogger(context.Background(), c.logger)
	event := Event{Type: EventSubmission, Submission: &res}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	events := []Event{event}

	switch {
	case res.State == dispatch.StateSuccess:
		var applied []Event
		err := c.ledger.Update(func(db safeq.KVStore) error {
			var err error
			applied, err = c.applySuccess(db, res.IDs, func(common.Hash) common.Hash { return res.TxHash })
			return err
		})
		if err != nil {
			c.logger.Error("apply execution", "batch", res.BatchID, "err", err)
		}
		events = append(events, applied...)
	case res.Reconcile:
		c.mu.Lock()
		for _, id := range res.IDs {
			c.reconcile[id] = res.TxHash
		}
		c.mu.Unlock()
	}

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Error("refresh after submission", "err", err)
	}
	// The snapshot published with the events includes the refreshed chain
	// state.
	if err := c.reclassify(ctx, events); err != nil {
		c.logger.Error("reclassify", "err", err)
	}
}
