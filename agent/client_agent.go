package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type rpcFunc func(context.Context, Msg) Resp
type mapRPCFunc map[string]rpcFunc

type agentClient struct {
	once sync.Once
	rpc  mapRPCFunc
	conn *websocket.Conn
	log  *zap.Logger
}

func newAgentClient(rpc mapRPCFunc, conn *websocket.Conn, log *zap.Logger) *agentClient {
	return &agentClient{
		rpc:  rpc,
		conn: conn,
		log:  log,
	}
}

// Listen serves RPC calls one at a time until the hub closes the
// connection or ctx is done.
func (a *agentClient) Listen(ctx context.Context) error {
	defer a.close()
	conn := a.conn
	_ = conn.SetReadDeadline(time.Now().Add(agentPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(agentPongWait)) })
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(agentPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(agentWriteWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.close()
		case <-done:
		}
	}()
	go keepAlive(conn, done, a.log)

	for {
		mt, msg, e := conn.ReadMessage()
		if e != nil {
			if _, ok := e.(*websocket.CloseError); ok || ctx.Err() != nil {
				return nil
			}
			return e
		}
		if mt != websocket.TextMessage {
			continue
		}
		resp := a.doRPC(ctx, bytes.TrimSpace(msg))
		if err := a.write(resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (a *agentClient) write(resp Resp) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrapf(err, "resp json encode: %+v", resp)
	}
	_ = a.conn.SetWriteDeadline(time.Now().Add(agentWriteWait))
	return a.conn.WriteMessage(websocket.TextMessage, payload)
}

func (a *agentClient) doRPC(ctx context.Context, msg []byte) (resp Resp) {
	req := Msg{}
	defer func() {
		resp.GUID = req.GUID
	}()
	if e := json.Unmarshal(msg, &req); e != nil {
		resp.Err = errors.Wrapf(e, "wrong msg format; msg: %.200s", string(msg)).Error()
		return
	}
	f, ok := a.rpc[req.Method]
	if !ok {
		resp.Err = errors.New("wrong rpc method : " + req.Method).Error()
		return
	}
	a.log.Debug("rpc", zap.String("method", req.Method), zap.String("guid", req.GUID))
	return f(ctx, req)
}

func (a *agentClient) close() {
	a.once.Do(func() {
		a.log.Info("agent close")
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(3*time.Second))
		_ = a.conn.Close()
	})
}
