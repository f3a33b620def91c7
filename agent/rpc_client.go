package agent

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shubinmi/phonelist"
)

const (
	RPCEntriesMethod = "entries"
	RPCPingMethod    = "ping"
)

type rpcClient struct {
	dir   phonelist.Directory
	funcs map[string]RPCFunc
}

type rpcOpt func(r *rpcClient)

func WithEntries() func(r *rpcClient) {
	return func(r *rpcClient) {
		r.funcs[RPCEntriesMethod] = r.entries
	}
}

func WithPing() func(r *rpcClient) {
	return func(r *rpcClient) {
		r.funcs[RPCPingMethod] = r.ping
	}
}

// DefaultRPCFuncs exposes dir through the selected RPC methods.
func DefaultRPCFuncs(dir phonelist.Directory, ops ...rpcOpt) map[string]RPCFunc {
	rcl := &rpcClient{
		dir:   dir,
		funcs: make(map[string]RPCFunc),
	}
	for _, f := range ops {
		f(rcl)
	}
	return rcl.funcs
}

func (r *rpcClient) entries(ctx context.Context, _ string) (data string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "rpc entries")
		}
	}()
	es, err := r.dir.Entries(ctx)
	if err != nil {
		return
	}
	d, err := json.Marshal(es)
	if err != nil {
		return
	}
	data = string(d)
	return
}

func (r *rpcClient) ping(_ context.Context, params string) (string, error) {
	return params, nil
}

// Directory returns a phonelist.Directory served by the agent agentID.
func (s *Hub) Directory(agentID string) phonelist.Directory {
	return phonelist.DirectoryFunc(func(ctx context.Context) ([]phonelist.Entry, error) {
		resp, err := s.RPC(ctx, agentID, Msg{Method: RPCEntriesMethod})
		if err != nil {
			return nil, err
		}
		if resp.Err != "" {
			return nil, errors.New(resp.Err)
		}
		var es []phonelist.Entry
		if err = json.Unmarshal([]byte(resp.Data), &es); err != nil {
			return nil, errors.Wrap(err, "decode agent entries")
		}
		return es, nil
	})
}
