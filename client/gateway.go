package client

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/valyala/fasthttp"
)

// Gateway is a client of the transaction service HTTP API.
type Gateway struct {
	http *httpClient
	// pageSize is the number of queue entries requested per page.
	pageSize int
}

var _ safeq.Gateway = (*Gateway)(nil)

// NewGateway returns a client of the service at given base URL, for example
// https://safe-transaction-mainnet.safe.global.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		http:     newHTTPClient(baseURL, nil),
		pageSize: 100,
	}
}

// gatewayTx is a multisig transaction as returned by the service.
type gatewayTx struct {
	SafeTxHash            common.Hash           `json:"safeTxHash"`
	Safe                  common.Address        `json:"safe"`
	To                    common.Address        `json:"to"`
	Value                 *math.HexOrDecimal256 `json:"value"`
	Data                  hexutil.Bytes         `json:"data"`
	Operation             safeq.Operation       `json:"operation"`
	SafeTxGas             *math.HexOrDecimal256 `json:"safeTxGas"`
	BaseGas               *math.HexOrDecimal256 `json:"baseGas"`
	GasPrice              *math.HexOrDecimal256 `json:"gasPrice"`
	GasToken              common.Address        `json:"gasToken"`
	RefundReceiver        common.Address        `json:"refundReceiver"`
	Nonce                 uint64                `json:"nonce"`
	SubmissionDate        time.Time             `json:"submissionDate"`
	Proposer              common.Address        `json:"proposer"`
	ConfirmationsRequired int                   `json:"confirmationsRequired"`
	Confirmations         []gatewayConfirmation `json:"confirmations"`
	IsExecuted            bool                  `json:"isExecuted"`
	IsSuccessful          *bool                 `json:"isSuccessful"`
	TransactionHash       *common.Hash          `json:"transactionHash"`
}

type gatewayConfirmation struct {
	Owner          common.Address `json:"owner"`
	Signature      hexutil.Bytes  `json:"signature"`
	SubmissionDate time.Time      `json:"submissionDate"`
}

type gatewayPage struct {
	Next    *string     `json:"next"`
	Results []gatewayTx `json:"results"`
}

// transaction converts the service representation. The status of a pending
// entry is only a hint, the ledger recomputes it from the confirmations.
func (g *gatewayTx) transaction() safeq.Transaction {
	t := safeq.Transaction{
		ID:   g.SafeTxHash,
		Safe: g.Safe,
		Tx: safeq.SafeTx{
			To:             g.To,
			Value:          bigOf(g.Value),
			Data:           g.Data,
			Operation:      g.Operation,
			SafeTxGas:      bigOf(g.SafeTxGas),
			BaseGas:        bigOf(g.BaseGas),
			GasPrice:       bigOf(g.GasPrice),
			GasToken:       g.GasToken,
			RefundReceiver: g.RefundReceiver,
			Nonce:          g.Nonce,
		},
		ConfirmationsRequired: g.ConfirmationsRequired,
		SubmittedAt:           safeq.AsUnixTime(g.SubmissionDate),
		Proposer:              g.Proposer,
	}
	for _, c := range g.Confirmations {
		t.Confirmations = append(t.Confirmations, safeq.Confirmation{
			Owner:       c.Owner,
			Signature:   c.Signature,
			SubmittedAt: safeq.AsUnixTime(c.SubmissionDate),
		})
	}
	if g.TransactionHash != nil {
		t.ExecutedTxHash = *g.TransactionHash
	}
	switch {
	case g.IsExecuted && g.IsSuccessful != nil && !*g.IsSuccessful:
		t.Status = safeq.StatusFailed
	case g.IsExecuted:
		t.Status = safeq.StatusSuccess
	case t.IsFullyConfirmed():
		t.Status = safeq.StatusAwaitingExecution
	default:
		t.Status = safeq.StatusAwaitingConfirmations
	}
	return t
}

func bigOf(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return (*big.Int)(v)
}

func decimal(v *big.Int) string {
	return safeq.BigOrZero(v).String()
}

// Queue returns all transactions that were not executed yet, following the
// pagination of the service.
func (g *Gateway) Queue(ctx context.Context, safe common.Address) ([]safeq.Transaction, error) {
	path := fmt.Sprintf("/api/v1/safes/%s/multisig-transactions/?executed=false&ordering=nonce&limit=%d",
		safe.Hex(), g.pageSize)
	var res []safeq.Transaction
	for path != "" {
		var page gatewayPage
		if err := g.http.do(ctx, fasthttp.MethodGet, path, nil, &page); err != nil {
			return nil, errors.Wrap(err, "queue")
		}
		for i := range page.Results {
			res = append(res, page.Results[i].transaction())
		}
		path = ""
		if page.Next != nil {
			path = *page.Next
		}
	}
	return res, nil
}

// HistoricalTx returns a single transaction by its identity.
func (g *Gateway) HistoricalTx(ctx context.Context, id common.Hash) (*safeq.Transaction, error) {
	var tx gatewayTx
	path := fmt.Sprintf("/api/v1/multisig-transactions/%s/", id.Hex())
	if err := g.http.do(ctx, fasthttp.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}
	t := tx.transaction()
	return &t, nil
}

// History returns a page of executed transactions, most recent first. The
// cursor is the next page URL returned by the service.
func (g *Gateway) History(ctx context.Context, safe common.Address, cursor string) (*safeq.HistoryPage, error) {
	path := cursor
	if path == "" {
		path = fmt.Sprintf("/api/v1/safes/%s/multisig-transactions/?executed=true&ordering=-nonce&limit=%d",
			safe.Hex(), g.pageSize)
	} else if _, err := url.Parse(cursor); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "cursor: %s", err)
	}
	var page gatewayPage
	if err := g.http.do(ctx, fasthttp.MethodGet, path, nil, &page); err != nil {
		return nil, errors.Wrap(err, "history")
	}
	res := &safeq.HistoryPage{}
	for i := range page.Results {
		res.Results = append(res.Results, page.Results[i].transaction())
	}
	if page.Next != nil {
		res.Next = *page.Next
	}
	return res, nil
}

type proposeRequest struct {
	To                      common.Address  `json:"to"`
	Value                   string          `json:"value"`
	Data                    hexutil.Bytes   `json:"data"`
	Operation               safeq.Operation `json:"operation"`
	SafeTxGas               string          `json:"safeTxGas"`
	BaseGas                 string          `json:"baseGas"`
	GasPrice                string          `json:"gasPrice"`
	GasToken                common.Address  `json:"gasToken"`
	RefundReceiver          common.Address  `json:"refundReceiver"`
	Nonce                   uint64          `json:"nonce"`
	ContractTransactionHash common.Hash     `json:"contractTransactionHash"`
	Sender                  common.Address  `json:"sender"`
	Signature               hexutil.Bytes   `json:"signature"`
}

// Propose stores a new transaction with the signature of the proposer.
func (g *Gateway) Propose(ctx context.Context, safe common.Address, p safeq.Proposal) error {
	req := proposeRequest{
		To:                      p.Tx.To,
		Value:                   decimal(p.Tx.Value),
		Data:                    p.Tx.Data,
		Operation:               p.Tx.Operation,
		SafeTxGas:               decimal(p.Tx.SafeTxGas),
		BaseGas:                 decimal(p.Tx.BaseGas),
		GasPrice:                decimal(p.Tx.GasPrice),
		GasToken:                p.Tx.GasToken,
		RefundReceiver:          p.Tx.RefundReceiver,
		Nonce:                   p.Tx.Nonce,
		ContractTransactionHash: p.ID,
		Sender:                  p.Proposer,
		Signature:               p.Signature,
	}
	path := fmt.Sprintf("/api/v1/safes/%s/multisig-transactions/", safe.Hex())
	return errors.Wrap(g.http.do(ctx, fasthttp.MethodPost, path, req, nil), "propose")
}

// Confirm adds an owner signature to a stored transaction.
func (g *Gateway) Confirm(ctx context.Context, id common.Hash, signature []byte) error {
	req := struct {
		Signature hexutil.Bytes `json:"signature"`
	}{Signature: signature}
	path := fmt.Sprintf("/api/v1/multisig-transactions/%s/confirmations/", id.Hex())
	return errors.Wrap(g.http.do(ctx, fasthttp.MethodPost, path, req, nil), "confirm")
}
