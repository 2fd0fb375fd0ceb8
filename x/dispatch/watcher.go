package dispatch

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// watch follows a broadcast submission until it is mined, it failed or the
// mining timeout passed.
func (d *Dispatcher) watch(logger log.Logger, h *Handle, method Method, taskID string, bcast safeq.Broadcast) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.conf.MiningTimeout())
	defer cancel()

	res := Result{
		BatchID: h.BatchID,
		IDs:     h.IDs,
		Method:  method,
		State:   StateFailed,
	}

	var (
		hash common.Hash
		err  error
	)
	if taskID != "" {
		hash, err = d.waitTask(ctx, logger, taskID)
	} else {
		hash, err = bcast.Resolve(ctx)
	}
	if err == nil {
		res.TxHash = hash
		if hash != bcast.Hash {
			d.recordHash(ctx, logger, h, hash)
		}
		err = d.waitReceipt(ctx, logger, hash)
	}

	switch {
	case err == nil:
		res.State = StateSuccess
	case ctx.Err() != nil:
		res.Err = errors.Wrapf(errors.ErrTimeout, "not mined within %s", d.conf.MiningTimeout())
		res.Reconcile = true
	default:
		res.Err = err
	}

	// On shutdown the outcome is unknown. Keep the submission registered
	// so that no other process submits it again before it expires.
	if d.ctx.Err() == nil {
		if err := d.tracker.Release(context.Background(), h.IDs...); err != nil {
			logger.Error("cannot release submission", "err", err)
		}
	}
	d.forget(h.BatchID)

	if res.Err != nil {
		logger.Info("submission failed", "hash", res.TxHash.Hex(), "err", res.Err, "reconcile", res.Reconcile)
	} else {
		logger.Info("submission mined", "hash", res.TxHash.Hex())
	}

	h.result = res
	close(h.done)
	d.results.Send(res)
}

// waitTask polls the relay until it broadcast the transaction.
func (d *Dispatcher) waitTask(ctx context.Context, logger log.Logger, taskID string) (common.Hash, error) {
	var hash common.Hash
	err := d.poll(ctx, func() (bool, error) {
		task, err := d.relay.TaskStatus(ctx, taskID)
		switch {
		case err != nil:
			logger.Debug("relay task status", "task", taskID, "err", err)
			return false, nil
		case task.Failed:
			return true, errors.Wrapf(errors.ErrBroadcast, "relay task %s failed: %s", taskID, task.Reason)
		case task.TxHash == (common.Hash{}):
			return false, nil
		}
		hash = task.TxHash
		return true, nil
	})
	return hash, err
}

// waitReceipt polls the chain until the transaction is mined.
func (d *Dispatcher) waitReceipt(ctx context.Context, logger log.Logger, hash common.Hash) error {
	return d.poll(ctx, func() (bool, error) {
		r, err := d.chain.TransactionReceipt(ctx, hash)
		switch {
		case err != nil:
			logger.Debug("transaction receipt", "hash", hash.Hex(), "err", err)
			return false, nil
		case r == nil:
			return false, nil
		case !r.Success:
			return true, errors.Wrapf(errors.ErrReverted, "transaction %s in block %d", hash.Hex(), r.BlockNumber)
		}
		return true, nil
	})
}

// poll calls fn until it is done or the context is cancelled.
func (d *Dispatcher) poll(ctx context.Context, fn func() (bool, error)) error {
	ticker := time.NewTicker(d.conf.PollInterval())
	defer ticker.Stop()
	for {
		if done, err := fn(); done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) recordHash(ctx context.Context, logger log.Logger, h *Handle, hash common.Hash) {
	for _, id := range h.IDs {
		sub, err := d.tracker.Get(ctx, id)
		if err != nil {
			logger.Error("cannot load submission", "id", id.Hex(), "err", err)
			continue
		}
		sub.TxHash = hash
		if err := d.tracker.Update(ctx, *sub); err != nil {
			logger.Error("cannot update submission", "id", id.Hex(), "err", err)
		}
	}
}
