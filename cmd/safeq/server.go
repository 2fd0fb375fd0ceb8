package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/app"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/dispatch"
	"github.com/iov-one/safeq/x/recovery"
	"github.com/tendermint/tendermint/libs/log"
)

// eventWriteTimeout bounds a single websocket write. A client that does not
// read is disconnected so that it cannot hold back other subscribers.
const eventWriteTimeout = 5 * time.Second

// server exposes a coordinator over HTTP.
type server struct {
	coord  *app.Coordinator
	logger log.Logger
	debug  bool
}

func newServer(coord *app.Coordinator, logger log.Logger, debug bool) *fiber.App {
	s := &server{coord: coord, logger: logger.With("module", "api"), debug: debug}
	a := fiber.New(fiber.Config{
		AppName:               "safeq",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	a.Get("/queue", s.queue)
	a.Post("/refresh", s.refresh)
	a.Get("/recovery", s.recovery)
	a.Post("/transactions", s.propose)
	a.Post("/transactions/:id/confirmations", s.sign)
	a.Post("/dispatch", s.dispatch)
	a.Delete("/dispatch/:id", s.abandon)
	a.Use("/events", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	a.Get("/events", websocket.New(s.events))
	return a
}

type errorResponse struct {
	Error struct {
		Code    uint32 `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *server) handleError(c *fiber.Ctx, err error) error {
	var (
		res    errorResponse
		status int
	)
	if fe, ok := err.(*fiber.Error); ok {
		status = fe.Code
		res.Error.Message = fe.Message
	} else {
		status, res.Error.Code, res.Error.Message = errors.HTTPInfo(err, s.debug)
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(res)
}

func (s *server) context(c *fiber.Ctx) context.Context {
	return safeq.WithLogger(c.UserContext(), s.logger)
}

func (s *server) queue(c *fiber.Ctx) error {
	snap := s.coord.Snapshot()
	if snap == nil {
		var err error
		if snap, err = s.coord.Refresh(s.context(c)); err != nil {
			return err
		}
	}
	return c.JSON(snap)
}

func (s *server) refresh(c *fiber.Ctx) error {
	snap, err := s.coord.Refresh(s.context(c))
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *server) recovery(c *fiber.Ctx) error {
	entries, err := s.coord.Recovery(s.context(c))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []recovery.Entry{}
	}
	return c.JSON(entries)
}

func (s *server) propose(c *fiber.Ctx) error {
	var tx safeq.SafeTx
	if err := json.Unmarshal(c.Body(), &tx); err != nil {
		return errors.Wrapf(errors.ErrInput, "body: %s", err)
	}
	t, err := s.coord.Propose(s.context(c), tx)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *server) sign(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}
	if err := s.coord.Sign(s.context(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type dispatchRequest struct {
	IDs    []common.Hash   `json:"ids"`
	Method dispatch.Method `json:"method"`
	// Wait makes the response carry the outcome of the submission.
	Wait bool `json:"wait"`
}

type dispatchResponse struct {
	BatchID string           `json:"batchId"`
	IDs     []common.Hash    `json:"ids"`
	TxHash  common.Hash      `json:"txHash,omitempty"`
	Result  *dispatch.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *server) dispatch(c *fiber.Ctx) error {
	var req dispatchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errors.Wrapf(errors.ErrInput, "body: %s", err)
	}
	if len(req.IDs) == 0 {
		return errors.Field("IDs", errors.ErrEmpty, "nothing to execute")
	}
	ctx := s.context(c)
	h, err := s.coord.Dispatch(ctx, req.IDs, req.Method)
	if err != nil {
		return err
	}
	res := dispatchResponse{BatchID: h.BatchID, IDs: h.IDs, TxHash: h.TxHash}
	if !req.Wait {
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
	result, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	res.Result = &result
	res.TxHash = result.TxHash
	if result.Err != nil {
		res.Error = result.Err.Error()
	}
	return c.JSON(res)
}

func (s *server) abandon(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}
	if err := s.coord.Abandon(s.context(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// events streams coordinator events as JSON messages until the client
// disconnects.
func (s *server) events(conn *websocket.Conn) {
	ch := make(chan app.Event, 64)
	sub := s.coord.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-ch:
			raw, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("cannot encode event", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-sub.Err():
			return
		case <-closed:
			return
		}
	}
}

func parseID(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errors.Field("ID", errors.ErrInput, "not a transaction identity: %q", raw)
	}
	return common.BytesToHash(b), nil
}
