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
	"github.com/uber/windlass/core"
	"github.com/uber/windlass/lib/download"
	"github.com/uber/windlass/lib/torrent/scheduler"
	"github.com/uber/windlass/metrics"
	"github.com/uber/windlass/utils/log"
)

// Config defines peer agent configuration.
type Config struct {
	Logging         log.Config         `yaml:"logging"`
	Metrics         metrics.Config     `yaml:"metrics"`
	Scheduler       scheduler.Config   `yaml:"scheduler"`
	PeerIDFactory   core.PeerIDFactory `yaml:"peer_id_factory"`
	TorrentCriteria download.Config    `yaml:"torrent_criteria"`
}

func (c Config) applyDefaults() Config {
	if c.PeerIDFactory == "" {
		c.PeerIDFactory = core.AddrHashPeerIDFactory
	}
	if len(c.TorrentCriteria.Extensions) == 0 && len(c.TorrentCriteria.ContentTypes) == 0 {
		c.TorrentCriteria = download.Config{
			Extensions:   []string{".torrent"},
			ContentTypes: []string{"application/x-bittorrent"},
		}
	}
	return c
}
