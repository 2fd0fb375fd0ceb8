package dispatch

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/batch"
	"github.com/iov-one/safeq/x/executable"
	"github.com/iov-one/safeq/x/pending"
)

// Dispatcher submits executions and watches them until they are mined.
type Dispatcher struct {
	chain     safeq.Chain
	relay     safeq.Relay
	tracker   pending.Tracker
	conf      Configuration
	multiSend common.Address

	mu      sync.Mutex
	flights map[string]*flight

	// registering serializes the sibling check with the registration.
	registering sync.Mutex

	results event.Feed

	// ctx bounds all watchers. It is cancelled by Close.
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// flight is a submission started by this dispatcher.
type flight struct {
	ids       []common.Hash
	cancel    context.CancelFunc
	broadcast bool
	abandoned bool
}

// NewDispatcher returns a dispatcher. Relay may be nil if the RELAY method
// is not available.
func NewDispatcher(
	chain safeq.Chain,
	relay safeq.Relay,
	tracker pending.Tracker,
	conf Configuration,
	batchConf batch.Configuration,
) *Dispatcher {
	ctx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		chain:     chain,
		relay:     relay,
		tracker:   tracker,
		conf:      conf,
		multiSend: batchConf.MultiSend,
		flights:   make(map[string]*flight),
		ctx:       ctx,
		stop:      stop,
	}
}

// SubscribeResults delivers the result of every broadcast submission.
func (d *Dispatcher) SubscribeResults(ch chan<- Result) event.Subscription {
	return d.results.Subscribe(ch)
}

// Close stops all watchers and waits for them to return. Submissions that
// were being watched stay registered in the tracker until they expire.
func (d *Dispatcher) Close() {
	d.stop()
	d.wg.Wait()
}

// Dispatch registers and broadcasts the execution. It returns once the
// transaction was handed to the relay or sent by the wallet. Follow the
// returned handle, or subscribe to the results, to learn the outcome.
//
// Nothing is registered if the request cannot be executed. All errors
// returned after the registration release it again.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Handle, error) {
	to, data, err := d.prepare(&req)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	ids := req.IDs()
	logger := safeq.GetLogger(ctx).With("module", "dispatch", "batch", batchID, "method", req.Method.String())

	now := safeq.AsUnixTime(safeq.Now(ctx))
	subs := make([]pending.Submission, len(ids))
	for i, id := range ids {
		subs[i] = pending.Submission{ID: id, BatchID: batchID, StartedAt: now}
	}
	if err := d.register(ctx, subs, req.Siblings); err != nil {
		return nil, errors.Wrap(err, "register submission")
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f := &flight{ids: ids, cancel: cancel}
	d.mu.Lock()
	d.flights[batchID] = f
	d.mu.Unlock()

	var (
		taskID string
		bcast  safeq.Broadcast
	)
	switch req.Method {
	case MethodRelay:
		taskID, err = d.submitRelay(sendCtx, &req, to, data)
	case MethodDirect:
		bcast, err = d.submitDirect(sendCtx, &req, to, data)
	}

	d.mu.Lock()
	abandoned := f.abandoned
	if err == nil {
		f.broadcast = true
	}
	d.mu.Unlock()

	if err != nil {
		d.forget(batchID)
		if rerr := d.tracker.Release(context.Background(), ids...); rerr != nil {
			logger.Error("cannot release submission", "err", rerr)
		}
		if abandoned {
			return nil, errors.Wrap(errors.ErrBroadcast, "abandoned")
		}
		return nil, err
	}
	if abandoned {
		logger.Info("abandoned too late, transaction was broadcast")
	}

	h := newHandle(batchID, ids)
	h.TxHash = bcast.Hash
	for i := range subs {
		subs[i].TxHash = bcast.Hash
		subs[i].TaskID = taskID
		if err := d.tracker.Update(ctx, subs[i]); err != nil {
			logger.Error("cannot update submission", "id", subs[i].ID.Hex(), "err", err)
		}
	}
	logger.Info("broadcast", "ids", len(ids), "hash", bcast.Hash.Hex(), "task", taskID)

	d.wg.Add(1)
	go d.watch(logger, h, req.Method, taskID, bcast)
	return h, nil
}

// register stores the submissions unless a sibling is being submitted.
// Only one execution may compete for a nonce.
func (d *Dispatcher) register(ctx context.Context, subs []pending.Submission, siblings []common.Hash) error {
	d.registering.Lock()
	defer d.registering.Unlock()

	for _, id := range siblings {
		_, err := d.tracker.Get(ctx, id)
		switch {
		case errors.ErrNotFound.Is(err):
			continue
		case err != nil:
			return err
		}
		return errors.Wrapf(errors.ErrInProgress, "transaction %s uses the same nonce", id.Hex())
	}
	return d.tracker.Register(ctx, subs)
}

// Abandon cancels a submission whose broadcast did not happen yet, for
// example while the wallet still asks for approval. ErrState is returned
// once it was broadcast.
//
// A wallet that sends the transaction despite the cancellation cannot be
// stopped. Such a submission is watched as any other.
func (d *Dispatcher) Abandon(ctx context.Context, id common.Hash) error {
	sub, err := d.tracker.Get(ctx, id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.flights[sub.BatchID]
	switch {
	case !ok:
		return errors.Wrapf(errors.ErrState, "batch %s is not submitted by this process", sub.BatchID)
	case f.broadcast:
		return errors.Wrapf(errors.ErrState, "batch %s was already broadcast", sub.BatchID)
	}
	f.abandoned = true
	f.cancel()
	safeq.GetLogger(ctx).Info("abandon submission", "module", "dispatch", "batch", sub.BatchID)
	return nil
}

func (d *Dispatcher) forget(batchID string) {
	d.mu.Lock()
	delete(d.flights, batchID)
	d.mu.Unlock()
}

func (d *Dispatcher) submitRelay(ctx context.Context, req *Request, to common.Address, data []byte) (string, error) {
	if d.relay == nil {
		return "", errors.Wrap(errors.ErrInput, "relay is not available")
	}
	a := req.Account
	quota, err := d.relay.RemainingQuota(ctx, a.ChainID, a.Address)
	if err != nil {
		return "", errors.Wrapf(errors.ErrBroadcast, "relay quota: %s", err)
	}
	if quota <= 0 {
		return "", errors.Wrapf(errors.ErrQuotaExceeded, "no relays left for %s", a.Address.Hex())
	}
	taskID, err := d.relay.Relay(ctx, safeq.RelayRequest{
		ChainID: a.ChainID,
		Safe:    a.Address,
		To:      to,
		Data:    data,
	})
	if err != nil {
		if errors.ErrQuotaExceeded.Is(err) {
			return "", err
		}
		return "", errors.Wrapf(errors.ErrBroadcast, "relay: %s", err)
	}
	return taskID, nil
}

func (d *Dispatcher) submitDirect(ctx context.Context, req *Request, to common.Address, data []byte) (safeq.Broadcast, error) {
	call := safeq.Call{From: req.Signer.Address(), To: to, Data: data}
	gas, err := d.chain.EstimateGas(ctx, call)
	if err != nil {
		return safeq.Broadcast{}, errors.Wrapf(errors.ErrBroadcast, "estimate gas: %s", err)
	}
	call.Gas = d.conf.GasLimit(gas)

	fees, err := d.chain.FeeParams(ctx)
	if err != nil {
		return safeq.Broadcast{}, errors.Wrapf(errors.ErrBroadcast, "fee params: %s", err)
	}
	b, err := req.Signer.SendTransaction(ctx, call, fees)
	if err != nil {
		if errors.ErrBroadcast.Is(err) {
			return b, err
		}
		return b, errors.Wrapf(errors.ErrBroadcast, "send: %s", err)
	}
	return b, nil
}

// prepare checks that the request can be executed and returns the call
// target and data.
func (d *Dispatcher) prepare(req *Request) (common.Address, []byte, error) {
	a := req.Account
	switch {
	case a == nil:
		return common.Address{}, nil, errors.Wrap(errors.ErrInput, "no account")
	case len(req.Txs) == 0:
		return common.Address{}, nil, errors.Wrap(errors.ErrEmpty, "no transactions")
	}

	var signer common.Address
	switch req.Method {
	case MethodRelay:
	case MethodDirect:
		if req.Signer == nil {
			return common.Address{}, nil, errors.Wrap(errors.ErrInput, "no wallet connected")
		}
		signer = req.Signer.Address()
		if executable.IsExecutionLoop(a, signer) {
			return common.Address{}, nil, errors.Wrap(errors.ErrValidation, "the Safe cannot execute its own transaction")
		}
	default:
		return common.Address{}, nil, errors.Wrapf(errors.ErrInput, "method %s", req.Method)
	}

	for i, t := range req.Txs {
		if err := checkQueued(a, t, uint64(i)); err != nil {
			return common.Address{}, nil, errors.Wrapf(err, "transaction %s", t.ID.Hex())
		}
	}

	if req.IsBatch() {
		for _, t := range req.Txs {
			if !t.IsFullyConfirmed() {
				return common.Address{}, nil, errors.Wrapf(errors.ErrValidation, "transaction %s is not confirmed", t.ID.Hex())
			}
		}
		data, err := batch.EncodeMultiSend(a, req.Txs)
		return d.multiSend, data, err
	}

	t := req.Txs[0]
	var lastSigner common.Address
	if !t.IsFullyConfirmed() {
		// The relay only accepts fully signed executions.
		if req.Method == MethodRelay || !executable.ExecutableViaLastSigner(t, a, signer) {
			return common.Address{}, nil, errors.Wrapf(errors.ErrValidation,
				"%d of %d confirmations", t.ConfirmationsSubmitted(), t.ConfirmationsRequired)
		}
		lastSigner = signer
	}
	signatures, err := batch.Signatures(a, t, lastSigner)
	if err != nil {
		return common.Address{}, nil, err
	}
	data, err := batch.ExecTransaction(t, signatures)
	return a.Address, data, err
}

// checkQueued returns an error unless the transaction waits for execution at
// the given position after the account nonce.
func checkQueued(a *safeq.Account, t *safeq.Transaction, offset uint64) error {
	switch {
	case t.Status == safeq.StatusWillBeReplaced:
		return errors.Wrapf(errors.ErrConflict, "nonce %d was executed by another transaction", t.Nonce())
	case t.Status.IsTerminal():
		return errors.Wrapf(errors.ErrState, "transaction is %s", t.Status)
	case t.Nonce() < a.Nonce:
		return errors.Wrapf(errors.ErrValidation, "stale nonce %d, account nonce is %d", t.Nonce(), a.Nonce)
	case t.Nonce() != a.Nonce+offset:
		return errors.Wrapf(errors.ErrValidation, "nonce %d, want %d", t.Nonce(), a.Nonce+offset)
	}
	return nil
}
