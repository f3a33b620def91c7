package agent

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type RPCFunc func(ctx context.Context, params string) (data string, err error)

// Agent is the directory side of the bridge: it dials the hub and answers
// its RPC calls.
type Agent struct {
	agent *agentClient
}

// Client connects to the hub. hub is either host:port (plain ws) or a
// ws:// or wss:// URL.
func Client(agentID, token, hub, path string, rpc map[string]RPCFunc, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := hubURL(hub, path)
	if err != nil {
		return nil, err
	}
	log.Info("connecting to hub", zap.String("url", u.String()), zap.String("agent", agentID))
	header := http.Header{}
	header.Set(identifyHeader, agentID)
	if token != "" {
		header.Set(tokenHeader, token)
	}
	conn, rb, err := websocket.DefaultDialer.Dial(u.String(), header)
	if rb != nil && rb.Body != nil {
		_ = rb.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial hub")
	}
	return &Agent{
		agent: newAgentClient(convert(rpc), conn, log),
	}, nil
}

func (c *Agent) Serve(ctx context.Context) error {
	return c.agent.Listen(ctx)
}

// Run keeps an agent connected to the hub until ctx is done, redialing
// with exponential backoff whenever the connection drops.
func Run(ctx context.Context, agentID, token, hub, path string, rpc map[string]RPCFunc, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	err := backoff.RetryNotify(func() error {
		a, err := Client(agentID, token, hub, path, rpc, log)
		if err != nil {
			return err
		}
		bo.Reset()
		if err = a.Serve(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("hub closed the connection")
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Warn("agent reconnect", zap.Error(err), zap.Duration("in", d))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func hubURL(hub, path string) (*url.URL, error) {
	if !strings.Contains(hub, "://") {
		return &url.URL{Scheme: "ws", Host: hub, Path: path}, nil
	}
	u, err := url.Parse(hub)
	if err != nil {
		return nil, errors.Wrap(err, "hub url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("hub url scheme %q, want ws or wss", u.Scheme)
	}
	if path != "" {
		u.Path = path
	}
	return u, nil
}

func convert(rpc map[string]RPCFunc) mapRPCFunc {
	res := make(mapRPCFunc, len(rpc))
	for n, f := range rpc {
		name, fun := n, f
		res[name] = func(ctx context.Context, msg Msg) (lr Resp) {
			data, err := fun(ctx, msg.Params)
			if err != nil {
				lr.Err = err.Error()
			}
			lr.Data = data
			lr.GUID = msg.GUID
			return
		}
	}
	return res
}
