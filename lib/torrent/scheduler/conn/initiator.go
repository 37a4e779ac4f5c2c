// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package conn

import (
	"fmt"
	"net"

	"github.com/uber/windlass/core"
	"github.com/uber/windlass/lib/torrent/peerstore"
	"github.com/uber/windlass/utils/backoff"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Command is a unit of work processed by the engine command loop.
type Command interface {
	fmt.Stringer

	Execute() error
}

// CommandQueue accepts commands for the engine command loop.
type CommandQueue interface {
	Push(Command)
}

// Runtime exposes the run state of the torrent session.
type Runtime interface {
	Halted() bool
}

// Obfuscator upgrades a raw connection into an obfuscated stream before
// the wire handshake takes place. The cipher implementation lives with
// the session transport layer.
type Obfuscator interface {
	Obfuscate(nc net.Conn, infoHash core.InfoHash) (net.Conn, error)
}

// Dialer opens raw connections to remote peers. Swappable for testing.
type Dialer func(addr string) (net.Conn, error)

// InitiateCommand opens an outbound connection to a single remote peer
// and, on success, enqueues the appropriate handshake command. One-shot:
// the engine executes it once and discards it.
type InitiateCommand struct {
	config   Config
	stats    tally.Scope
	runtime  Runtime
	queue    CommandQueue
	peers    *peerstore.Store
	peer     *core.Peer
	infoHash core.InfoHash
	hs       *Handshaker
	obf      Obfuscator
	dial     Dialer
	retry    *backoff.Backoff
	logger   *zap.SugaredLogger
}

// NewInitiateCommand creates a new InitiateCommand for peer. The peer must
// have been checked out of peers by the caller.
func NewInitiateCommand(
	config Config,
	stats tally.Scope,
	runtime Runtime,
	queue CommandQueue,
	peers *peerstore.Store,
	peer *core.Peer,
	infoHash core.InfoHash,
	hs *Handshaker,
	obf Obfuscator,
	logger *zap.SugaredLogger) *InitiateCommand {

	config = config.applyDefaults()

	return &InitiateCommand{
		config:   config,
		stats:    stats.Tagged(map[string]string{"module": "conn"}),
		runtime:  runtime,
		queue:    queue,
		peers:    peers,
		peer:     peer,
		infoHash: infoHash,
		hs:       hs,
		obf:      obf,
		dial: func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, config.ConnectTimeout)
		},
		retry:  backoff.New(config.DialRetry),
		logger: logger,
	}
}

func (c *InitiateCommand) String() string {
	return fmt.Sprintf("InitiateCommand(%s)", c.peer)
}

// Execute dials the peer and hands the socket off to a handshake command.
// A dial failure returns the peer to the store and schedules a
// replacement attempt against the next available peer; it is never fatal
// to the session.
func (c *InitiateCommand) Execute() error {
	if c.runtime.Halted() {
		c.abort()
		return nil
	}

	c.log().Info("Connecting to peer")

	var nc net.Conn
	var err error
	attempts := c.retry.Attempts()
	for attempts.WaitForNext() {
		if c.runtime.Halted() {
			c.abort()
			return nil
		}
		nc, err = c.dial(c.peer.Addr())
		if err == nil {
			break
		}
		c.stats.Counter("dial_failures").Inc(1)
		c.log().Infof("Error connecting to peer: %s", err)
	}
	if err != nil || nc == nil {
		// Schedule the replacement while the failed peer is still checked
		// out, so it is not picked again straight away.
		c.prepareForNextPeer()
		c.abort()
		return nil
	}

	if c.config.ObfuscateHandshake && c.obf != nil {
		c.queue.Push(newObfuscatedHandshakeCommand(c, nc))
	} else {
		c.queue.Push(newHandshakeCommand(c, nc))
	}

	c.prepareForNextPeer()
	return nil
}

// abort returns the peer to the store so another command may retry it
// later.
func (c *InitiateCommand) abort() {
	c.peers.Return(c.peer)
}

// prepareForNextPeer schedules an initiate command for the next available
// peer, if any.
func (c *InitiateCommand) prepareForNextPeer() {
	if c.runtime.Halted() {
		return
	}
	next, err := c.peers.Checkout()
	if err != nil {
		return
	}
	nc := NewInitiateCommand(
		c.config, c.stats, c.runtime, c.queue, c.peers, next, c.infoHash,
		c.hs, c.obf, c.logger)
	nc.retry = c.retry
	c.queue.Push(nc)
}

func (c *InitiateCommand) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "remote_peer", c.peer, "hash", c.infoHash)
	return c.logger.With(keysAndValues...)
}

// handshakeCommand performs the plain wire handshake on an established
// socket. Enqueued by InitiateCommand; the engine runs it on its next
// turn.
type handshakeCommand struct {
	parent *InitiateCommand
	nc     net.Conn
}

func newHandshakeCommand(parent *InitiateCommand, nc net.Conn) *handshakeCommand {
	return &handshakeCommand{parent, nc}
}

func (c *handshakeCommand) String() string {
	return fmt.Sprintf("HandshakeCommand(%s)", c.parent.peer)
}

func (c *handshakeCommand) Execute() error {
	p := c.parent
	if p.runtime.Halted() {
		c.nc.Close()
		p.abort()
		return nil
	}
	if err := p.hs.Initialize(c.nc, p.infoHash, p.peer.ID); err != nil {
		p.stats.Counter("handshake_failures").Inc(1)
		p.log().Infof("Error handshaking peer: %s", err)
		c.nc.Close()
		p.abort()
		return nil
	}
	p.stats.Counter("handshakes").Inc(1)
	p.log().Info("Handshake complete")
	return nil
}

// obfuscatedHandshakeCommand upgrades the socket through the session
// obfuscator, then performs the plain handshake over the obfuscated
// stream.
type obfuscatedHandshakeCommand struct {
	parent *InitiateCommand
	nc     net.Conn
}

func newObfuscatedHandshakeCommand(parent *InitiateCommand, nc net.Conn) *obfuscatedHandshakeCommand {
	return &obfuscatedHandshakeCommand{parent, nc}
}

func (c *obfuscatedHandshakeCommand) String() string {
	return fmt.Sprintf("ObfuscatedHandshakeCommand(%s)", c.parent.peer)
}

func (c *obfuscatedHandshakeCommand) Execute() error {
	p := c.parent
	if p.runtime.Halted() {
		c.nc.Close()
		p.abort()
		return nil
	}
	onc, err := p.obf.Obfuscate(c.nc, p.infoHash)
	if err != nil {
		p.stats.Counter("obfuscation_failures").Inc(1)
		p.log().Infof("Error obfuscating connection: %s", err)
		c.nc.Close()
		p.abort()
		return nil
	}
	return newHandshakeCommand(p, onc).Execute()
}
