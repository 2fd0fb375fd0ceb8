package safeqtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
)

// Gateway is an in-memory transaction service implementing safeq.Gateway.
//
// Transactions added with Add are listed in the queue until they are
// executed with Execute. Use QueueErr or FailQueue to simulate an
// unavailable service.
type Gateway struct {
	mu      sync.Mutex
	account *safeq.Account
	queue   []*safeq.Transaction
	history []*safeq.Transaction

	// PageSize is the number of history entries returned per page.
	PageSize int

	// QueueErr is returned by Queue when set.
	QueueErr error
	failures int

	// WriteErr is returned by Propose and Confirm when set.
	WriteErr error

	queueCall int
}

var _ safeq.Gateway = (*Gateway)(nil)

// NewGateway returns an empty gateway serving given account.
func NewGateway(a *safeq.Account) *Gateway {
	return &Gateway{account: a, PageSize: 20}
}

// Add puts transactions into the queue as they are.
func (g *Gateway) Add(txs ...*safeq.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range txs {
		g.queue = append(g.queue, t.Copy())
	}
}

// Execute marks the transaction as successfully executed and moves it, and
// all queued transactions sharing its nonce, to the history.
func (g *Gateway) Execute(id common.Hash, txHash common.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var nonce uint64
	found := false
	for _, t := range g.queue {
		if t.ID == id {
			nonce, found = t.Nonce(), true
		}
	}
	if !found {
		return
	}
	live := g.queue[:0]
	for _, t := range g.queue {
		switch {
		case t.ID == id:
			t.Status = safeq.StatusSuccess
			t.ExecutedTxHash = txHash
			g.history = append([]*safeq.Transaction{t}, g.history...)
		case t.Nonce() == nonce:
		default:
			live = append(live, t)
		}
	}
	g.queue = live
}

// Archive adds a transaction straight to the history.
func (g *Gateway) Archive(t *safeq.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append([]*safeq.Transaction{t.Copy()}, g.history...)
}

// FailQueue makes the next n Queue calls fail with a network error.
func (g *Gateway) FailQueue(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = n
}

// QueueCallCount returns how many times the queue was requested.
func (g *Gateway) QueueCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queueCall
}

func (g *Gateway) Queue(ctx context.Context, safe common.Address) ([]safeq.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queueCall++
	if g.QueueErr != nil {
		return nil, g.QueueErr
	}
	if g.failures > 0 {
		g.failures--
		return nil, errors.Wrap(errors.ErrNetwork, "connection refused")
	}
	if safe != g.account.Address {
		return nil, nil
	}
	res := make([]safeq.Transaction, 0, len(g.queue))
	for _, t := range g.queue {
		res = append(res, *t.Copy())
	}
	return res, nil
}

func (g *Gateway) HistoricalTx(ctx context.Context, id common.Hash) (*safeq.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, list := range [][]*safeq.Transaction{g.queue, g.history} {
		for _, t := range list {
			if t.ID == id {
				return t.Copy(), nil
			}
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "transaction %s", id.Hex())
}

func (g *Gateway) History(ctx context.Context, safe common.Address, cursor string) (*safeq.HistoryPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "cursor %q", cursor)
		}
		offset = n
	}
	page := &safeq.HistoryPage{}
	for i := offset; i < len(g.history) && len(page.Results) < g.PageSize; i++ {
		page.Results = append(page.Results, *g.history[i].Copy())
	}
	if next := offset + len(page.Results); next < len(g.history) {
		page.Next = strconv.Itoa(next)
	}
	return page, nil
}

func (g *Gateway) Propose(ctx context.Context, safe common.Address, p safeq.Proposal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.WriteErr != nil {
		return g.WriteErr
	}
	if want := sigs.SafeTxHash(g.account.ChainID, safe, p.Tx); want != p.ID {
		return errors.Wrap(errors.ErrValidation, "identity does not match the payload")
	}
	if err := sigs.Verify(p.ID, p.Proposer, p.Signature); err != nil {
		return err
	}
	for _, t := range g.queue {
		if t.ID == p.ID {
			return errors.Wrap(errors.ErrDuplicate, "already proposed")
		}
	}
	t := &safeq.Transaction{
		ID:                    p.ID,
		Safe:                  safe,
		Tx:                    p.Tx.Copy(),
		Kind:                  safeq.DetectKind(safe, p.Tx),
		ConfirmationsRequired: g.account.Threshold,
		Confirmations: []safeq.Confirmation{
			{Owner: p.Proposer, Signature: common.CopyBytes(p.Signature)},
		},
		Proposer: p.Proposer,
	}
	t.Status = pending(t)
	g.queue = append(g.queue, t)
	return nil
}

func (g *Gateway) Confirm(ctx context.Context, id common.Hash, signature []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.WriteErr != nil {
		return g.WriteErr
	}
	signer, err := sigs.Recover(id, signature)
	if err != nil {
		return err
	}
	for _, t := range g.queue {
		if t.ID != id {
			continue
		}
		if !t.HasConfirmed(signer) {
			t.Confirmations = append(t.Confirmations, safeq.Confirmation{
				Owner:     signer,
				Signature: common.CopyBytes(signature),
			})
		}
		t.Status = pending(t)
		return nil
	}
	return errors.Wrapf(errors.ErrNotFound, "transaction %s", id.Hex())
}

func pending(t *safeq.Transaction) safeq.Status {
	if t.IsFullyConfirmed() {
		return safeq.StatusAwaitingExecution
	}
	return safeq.StatusAwaitingConfirmations
}
