package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/valyala/fasthttp"
)

// Task states reported by the relay.
const (
	taskCheckPending    = "CheckPending"
	taskExecPending     = "ExecPending"
	taskWaitingConfirm  = "WaitingForConfirmation"
	taskExecSuccess     = "ExecSuccess"
	taskExecReverted    = "ExecReverted"
	taskCancelled       = "Cancelled"
	taskNotFoundOnRelay = "NotFound"
)

// Relay is a client of the fee sponsoring relay HTTP API.
type Relay struct {
	http *httpClient
}

var _ safeq.Relay = (*Relay)(nil)

// NewRelay returns a client of the relay at given base URL. The API key is
// optional.
func NewRelay(baseURL, apiKey string) *Relay {
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}
	return &Relay{http: newHTTPClient(baseURL, headers)}
}

type relayRequest struct {
	ChainID  uint64         `json:"chainId"`
	Target   common.Address `json:"target"`
	Data     hexutil.Bytes  `json:"data"`
	GasLimit string         `json:"gasLimit,omitempty"`
}

// Relay submits a signed execution and returns the task tracking it.
func (r *Relay) Relay(ctx context.Context, req safeq.RelayRequest) (string, error) {
	body := relayRequest{
		ChainID: req.ChainID,
		Target:  req.To,
		Data:    req.Data,
	}
	if req.GasLimit > 0 {
		body.GasLimit = fmt.Sprint(req.GasLimit)
	}
	var res struct {
		TaskID string `json:"taskId"`
	}
	if err := r.http.do(ctx, fasthttp.MethodPost, "/v1/relay", body, &res); err != nil {
		return "", errors.Wrap(err, "relay")
	}
	if res.TaskID == "" {
		return "", errors.Wrap(errors.ErrInput, "relay returned no task")
	}
	return res.TaskID, nil
}

// RemainingQuota returns how many transactions the Safe may still relay.
func (r *Relay) RemainingQuota(ctx context.Context, chainID uint64, safe common.Address) (int, error) {
	var res struct {
		Remaining int `json:"remaining"`
		Limit     int `json:"limit"`
	}
	path := fmt.Sprintf("/v1/relay/%d/%s", chainID, safe.Hex())
	if err := r.http.do(ctx, fasthttp.MethodGet, path, nil, &res); err != nil {
		return 0, errors.Wrap(err, "quota")
	}
	return res.Remaining, nil
}

type taskResponse struct {
	Task struct {
		TaskState        string       `json:"taskState"`
		TransactionHash  *common.Hash `json:"transactionHash"`
		LastCheckMessage string       `json:"lastCheckMessage"`
	} `json:"task"`
}

// TaskStatus returns the state of a relayed submission. A reverted execution
// is not a failure of the relay, its receipt carries the outcome.
func (r *Relay) TaskStatus(ctx context.Context, taskID string) (*safeq.RelayTask, error) {
	var res taskResponse
	path := "/tasks/status/" + taskID
	if err := r.http.do(ctx, fasthttp.MethodGet, path, nil, &res); err != nil {
		return nil, errors.Wrap(err, "task status")
	}
	task := &safeq.RelayTask{Reason: res.Task.LastCheckMessage}
	if res.Task.TransactionHash != nil {
		task.TxHash = *res.Task.TransactionHash
	}
	switch res.Task.TaskState {
	case taskCheckPending, taskExecPending, taskWaitingConfirm, taskExecSuccess, taskExecReverted:
	case taskCancelled, taskNotFoundOnRelay:
		task.Failed = true
	default:
		return nil, errors.Wrapf(errors.ErrInput, "unknown task state %q", res.Task.TaskState)
	}
	return task, nil
}
