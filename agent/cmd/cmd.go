// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uber/windlass/lib/torrent/scheduler"
	"github.com/uber/windlass/metrics"
	"github.com/uber/windlass/utils/configutil"
	"github.com/uber/windlass/utils/log"

	"github.com/uber-go/tally"
)

// Flags defines agent CLI flags.
type Flags struct {
	PeerIP     string
	PeerPort   int
	ConfigFile string
	Zone       string
	Cluster    string
}

// ParseFlags parses agent CLI flags.
func ParseFlags() *Flags {
	var flags Flags
	flag.StringVar(
		&flags.PeerIP, "peer-ip", "", "ip which peer will announce itself as")
	flag.IntVar(
		&flags.PeerPort, "peer-port", 0, "port which peer will announce itself as")
	flag.StringVar(
		&flags.ConfigFile, "config", "", "configuration file path")
	flag.StringVar(
		&flags.Zone, "zone", "", "zone/datacenter name")
	flag.StringVar(
		&flags.Cluster, "cluster", "", "cluster name (e.g. prod01-zone1)")
	flag.Parse()
	return &flags
}

// heartbeat periodically emits a counter metric which allows us to monitor
// the number of active agents.
func heartbeat(stats tally.Scope) {
	for {
		stats.Counter("heartbeat").Inc(1)
		time.Sleep(10 * time.Second)
	}
}

// drainCommands executes queued engine commands until done is closed.
func drainCommands(queue *scheduler.CommandQueue, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		c := queue.Poll()
		if c == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := c.Execute(); err != nil {
			log.With("command", c).Errorf("Error executing command: %s", err)
		}
	}
}

// Run sets up and runs the peer agent until terminated.
func Run(flags *Flags) {
	if flags.PeerPort == 0 {
		panic("must specify non-zero peer port")
	}
	var config Config
	if err := configutil.Load(flags.ConfigFile, &config); err != nil {
		panic(err)
	}
	config = config.applyDefaults()

	logger, err := log.ConfigureLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	stats, closer, err := metrics.New(config.Metrics, flags.Cluster)
	if err != nil {
		logger.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	if flags.Zone != "" {
		stats = stats.Tagged(map[string]string{"zone": flags.Zone})
	}

	go heartbeat(stats)

	peerID, err := config.PeerIDFactory.GeneratePeerID(flags.PeerIP, flags.PeerPort)
	if err != nil {
		logger.Fatalf("Failed to generate peer id: %s", err)
	}
	logger.Infof("Starting agent with peer id %s", peerID)

	logger.Infof(
		"Routing downloads into the torrent engine for extensions %v and content types %v",
		config.TorrentCriteria.Extensions, config.TorrentCriteria.ContentTypes)

	queue := scheduler.NewCommandQueue(config.Scheduler.CommandQueueSize, logger)

	done := make(chan struct{})
	go drainCommands(queue, done)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	close(done)
	logger.Info("Agent shutdown")
}
