package node

import (
	"errors"
	"net"
	"time"

	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/spec/rtt"
	"go.miragespace.co/keyval/util/ratecounter"

	"go.uber.org/zap"
)

const (
	DefaultGossipDelay    = time.Second * 3
	DefaultGossipInterval = time.Second
	DefaultRPCTimeout     = time.Second * 2
)

type NodeConfig struct {
	Logger *zap.Logger
	// Address is the advertised host:port of this node, its ID is derived from it
	Address    string
	KVProvider ring.KVProvider
	Transport  ring.Transport
	// Seeds are peer addresses known at start up
	Seeds       []string
	MaxReplicas int

	GossipDelay    time.Duration
	GossipInterval time.Duration
	RPCTimeout     time.Duration

	// optional, shown on the stats page
	NodesRTT     rtt.Recorder
	OutboundRate *ratecounter.Rate
}

func (c *NodeConfig) Validate() error {
	if c == nil {
		return errors.New("nil NodeConfig")
	}
	if c.Logger == nil {
		return errors.New("nil Logger")
	}
	if c.Address == "" {
		return errors.New("empty Address")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.New("invalid Address, must be host:port")
	}
	if c.KVProvider == nil {
		return errors.New("nil KVProvider")
	}
	if c.Transport == nil {
		return errors.New("nil Transport")
	}
	if c.MaxReplicas < 1 {
		return errors.New("invalid MaxReplicas, must be at least 1")
	}
	if c.GossipDelay < 0 {
		return errors.New("invalid GossipDelay, must not be negative")
	}
	if c.GossipInterval <= 0 {
		return errors.New("invalid GossipInterval, must be positive")
	}
	if c.RPCTimeout <= 0 {
		return errors.New("invalid RPCTimeout, must be positive")
	}
	return nil
}
