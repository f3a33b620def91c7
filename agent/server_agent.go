package agent

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/shubinmi/util/errs"
	"github.com/shubinmi/util/exec"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

const (
	maxMsgSize = 32 << 20
	maxRand    = 100
)

// States of the errors returned by Hub.RPC, see errs.InState.
const (
	ErrUnknown uint8 = iota
	ErrNoAgent
	ErrTimeout
	ErrClosed
)

type mapWsConn map[string]map[string]*websocket.Conn
type mapRPC map[string]chan<- Resp

// agentServer owns the connection and pending RPC maps. Each map lives in
// its own goroutine and is only touched by ops sent to it.
type agentServer struct {
	token   string
	log     *zap.Logger
	connOps chan func(mapWsConn)
	rpcOps  chan func(mapRPC)
	closed  chan struct{}
	once    sync.Once
	stopped sync.WaitGroup
}

func newAgentServer(token string, log *zap.Logger) *agentServer {
	a := &agentServer{
		token:   token,
		log:     log,
		connOps: make(chan func(conn mapWsConn)),
		rpcOps:  make(chan func(conn mapRPC)),
		closed:  make(chan struct{}),
	}
	a.stopped.Add(2)
	go a.serveRPC()
	go a.serveConnOps()
	return a
}

var errClosed = errs.WithState(ErrClosed, "agent hub closed")

// connOp runs op on the connection map and waits for it. It reports false
// when the hub is closed and op did not run.
func (a *agentServer) connOp(op func(mapWsConn)) bool {
	done := make(chan struct{})
	select {
	case a.connOps <- func(cs mapWsConn) {
		defer close(done)
		op(cs)
	}:
	case <-a.closed:
		return false
	}
	<-done
	return true
}

func (a *agentServer) rpcOp(op func(mapRPC)) bool {
	done := make(chan struct{})
	select {
	case a.rpcOps <- func(rs mapRPC) {
		defer close(done)
		op(rs)
	}:
	case <-a.closed:
		return false
	}
	<-done
	return true
}

// Send writes msg to one of the connections of agent id. The response, if
// wanted, is delivered to response under the returned guid.
func (a *agentServer) Send(id string, msg Msg, response chan<- Resp) (guid string, err error) {
	if msg.GUID == "" {
		msg.GUID = uuid.NewV4().String()
	}
	guid = msg.GUID
	ok := a.connOp(func(cs mapWsConn) {
		wss, ok := cs[id]
		if !ok {
			err = errs.WithState(ErrNoAgent, "cannot find conn with id: "+id)
			return
		}
		t, e := json.Marshal(msg)
		if e != nil {
			err = errs.WithState(ErrUnknown, errors.Wrapf(e, "msg to json: %+v", msg).Error())
			return
		}
		if response != nil {
			err = a.withRPCRespond(msg.GUID, response)
			if err != nil {
				return
			}
		}
		fs := make([]func() bool, 0, len(wss))
		for _, c := range wss {
			cn := c
			fs = append(fs, func() bool {
				_ = cn.SetWriteDeadline(time.Now().Add(agentWriteWait))
				err = cn.WriteMessage(websocket.TextMessage, t)
				return err == nil
			})
		}
		exec.UntilSuccess(fs...)
		if err == nil {
			return
		}
		if response != nil {
			a.rpcResponded(msg.GUID)
		}
	})
	if !ok {
		return guid, errClosed
	}
	return guid, err
}

func (a *agentServer) Handler(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(identifyHeader)
	if id == "" {
		http.Error(w, "empty identify header", http.StatusBadRequest)
		return
	}
	if a.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(tokenHeader)), []byte(a.token)) != 1 {
		http.Error(w, "wrong agent token", http.StatusUnauthorized)
		return
	}
	wsUp := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := wsUp.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("agent upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMsgSize)

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("agent handler recover", zap.Any("panic", r))
		}
	}()

	seed, ok := a.addConn(id, conn)
	if !ok {
		a.log.Warn("agent rejected, hub closed", zap.String("agent", id))
		return
	}
	defer a.removeConn(id, seed)
	a.log.Info("agent connected", zap.String("agent", id))
	if err = a.serveConn(conn); err != nil && !a.isClosed() {
		a.log.Warn("serve agent conn", zap.String("agent", id), zap.Error(err))
		return
	}
	a.log.Info("agent disconnected", zap.String("agent", id))
}

func (a *agentServer) removeConn(id, seed string) {
	a.connOp(func(cs mapWsConn) {
		if _, ok := cs[id][seed]; !ok {
			return
		}
		delete(cs[id], seed)
		if len(cs[id]) > 0 {
			return
		}
		delete(cs, id)
	})
}

func (a *agentServer) addConn(id string, conn *websocket.Conn) (seed string, ok bool) {
	seed = fmt.Sprint(time.Now()) + fmt.Sprint(rand.Intn(maxRand))
	ok = a.connOp(func(cs mapWsConn) {
		if _, ok := cs[id]; !ok {
			cs[id] = map[string]*websocket.Conn{seed: conn}
			return
		}
		cs[id][seed] = conn
	})
	return
}

func (a *agentServer) serveConn(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(agentPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(agentPongWait)) })

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done, a.log)

	for {
		mt, msg, e := conn.ReadMessage()
		if e != nil {
			if _, ok := e.(*websocket.CloseError); ok {
				return nil
			}
			return e
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg = bytes.TrimSpace(msg)
		if e = a.deliverRPCRespond(msg); e != nil {
			a.log.Warn("deliver rpc", zap.Error(e))
		}
	}
}

// keepAlive pings until done is closed. WriteControl may run concurrently
// with the other writers of conn.
func keepAlive(conn *websocket.Conn, done <-chan struct{}, log *zap.Logger) {
	tick := time.NewTicker(agentPingPeriod)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if er := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(agentWriteWait)); er != nil {
				log.Debug("ping", zap.Error(er))
			}
		case <-done:
			return
		}
	}
}

func (a *agentServer) deliverRPCRespond(msg []byte) (err error) {
	res := Resp{}
	if e := json.Unmarshal(msg, &res); e != nil {
		return errors.Wrapf(e, "wrong response format; msg: %.200s", string(msg))
	}
	ok := a.rpcOp(func(rpc mapRPC) {
		sender, ok := rpc[res.GUID]
		if !ok {
			err = errors.New("wrong guid to respond: " + res.GUID)
			return
		}
		delete(rpc, res.GUID)
		select {
		case sender <- res:
		default:
			err = errors.New("nobody waits for guid: " + res.GUID)
		}
	})
	if !ok {
		return errClosed
	}
	return
}

func (a *agentServer) rpcResponded(guid string) {
	a.rpcOp(func(rpc mapRPC) {
		delete(rpc, guid)
	})
}

func (a *agentServer) withRPCRespond(guid string, response chan<- Resp) (err error) {
	ok := a.rpcOp(func(rpc mapRPC) {
		if _, ok := rpc[guid]; ok {
			err = errors.New("guid rpc already exist: " + guid)
			return
		}
		rpc[guid] = response
	})
	if !ok {
		return errClosed
	}
	return
}

func (a *agentServer) serveRPC() {
	defer a.stopped.Done()
	rs := make(mapRPC)
	for {
		select {
		case op := <-a.rpcOps:
			op(rs)
		case <-a.closed:
			for id := range rs {
				delete(rs, id)
			}
			return
		}
	}
}

func (a *agentServer) serveConnOps() {
	defer a.stopped.Done()
	cs := make(mapWsConn)
	for {
		select {
		case op := <-a.connOps:
			op(cs)
		case <-a.closed:
			a.closeConns(cs)
			return
		}
	}
}

func (a *agentServer) closeConns(cs mapWsConn) {
	for id := range cs {
		for seed, c := range cs[id] {
			if c != nil {
				_ = c.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(agentWriteWait))
				_ = c.Close()
			}
			delete(cs[id], seed)
		}
		delete(cs, id)
	}
}

func (a *agentServer) isClosed() bool {
	select {
	case <-a.closed:
		return true
	default:
		return false
	}
}

// Close drops every agent connection. Handlers still running see the hub
// as closed and return without touching the maps.
func (a *agentServer) Close() {
	a.once.Do(func() {
		a.log.Info("agent hub close")
		close(a.closed)
	})
	a.stopped.Wait()
}
