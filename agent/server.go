package agent

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shubinmi/util/errs"
	"go.uber.org/zap"
)

// Hub accepts websocket connections from directory agents and calls
// their RPC methods.
type Hub struct {
	agent   *agentServer
	timeout time.Duration
	log     *zap.Logger
}

// Server creates a hub. token, when not empty, must be presented by every
// agent in the X-Phonelist-Token header.
func Server(timeout time.Duration, token string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		agent:   newAgentServer(token, log),
		timeout: timeout,
		log:     log,
	}
}

// Run listens on addr and serves agents on path until ctx is done.
func (s *Hub) Run(ctx context.Context, addr, path string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "agent hub listen")
	}
	return s.Serve(ctx, ln, path)
}

// Serve is Run on an open listener. Agent connections are dropped once
// ctx is done; a clean stop returns nil.
func (s *Hub) Serve(ctx context.Context, ln net.Listener, path string) error {
	r := mux.NewRouter()
	s.ReachMux(r, path)
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: agentWriteWait,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info("stopping agent hub")
		ctx1, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if e := srv.Shutdown(ctx1); e != nil {
			s.log.Warn("agent hub shutdown", zap.Error(e))
		}
		s.Close()
	}()
	s.log.Info("start agent hub", zap.String("addr", ln.Addr().String()), zap.String("path", path))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return errors.Wrap(err, "agent hub")
}

func (s *Hub) ReachMux(r *mux.Router, path string) {
	r.Handle(path, http.HandlerFunc(s.agent.Handler)).Methods(http.MethodGet)
}

// RPC sends msg to the agent registered as agentID and waits for its
// response, the hub timeout or ctx, whichever comes first.
func (s *Hub) RPC(ctx context.Context, agentID string, msg Msg) (Resp, error) {
	var r Resp
	res := make(chan Resp, 1)
	guid, err := s.agent.Send(agentID, msg, res)
	if err != nil {
		return r, err
	}
	select {
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "agent rpc")
	case <-time.After(s.timeout):
		err = errs.WithState(ErrTimeout, "agent rpc timeout")
	case r = <-res:
		return r, nil
	}
	s.agent.rpcResponded(guid)
	return r, err
}

func (s *Hub) Close() {
	s.agent.Close()
}
