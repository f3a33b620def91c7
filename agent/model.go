package agent

import "time"

type Msg struct {
	GUID   string
	Method string
	Params string
}

type Resp struct {
	GUID string
	Data string
	Err  string
}

const (
	agentPongWait   = 60 * time.Second
	agentPingPeriod = (agentPongWait * 8) / 10
	agentWriteWait  = 10 * time.Second
)

const (
	identifyHeader = "X-Phonelist-Agent"
	tokenHeader    = "X-Phonelist-Token"
)
