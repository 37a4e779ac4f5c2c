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
package download

import (
	"strings"
)

// Config defines content-type criteria configuration.
type Config struct {
	Extensions   []string `yaml:"extensions"`
	ContentTypes []string `yaml:"content_types"`
}

// Build creates the ContentTypeCriteria described by c.
func (c Config) Build() *ContentTypeCriteria {
	return NewContentTypeCriteria(c.Extensions, c.ContentTypes)
}

// FileEntry describes one file within a request group.
type FileEntry struct {
	Path        string
	ContentType string
	Length      int64
}

// RequestGroup is the unit of download work: one requested resource and
// the file entries it resolves to.
type RequestGroup struct {
	Files []FileEntry
}

// FirstFilePath returns the path of the group's first file entry, or
// empty.
func (g *RequestGroup) FirstFilePath() string {
	if len(g.Files) == 0 {
		return ""
	}
	return g.Files[0].Path
}

// Criteria selects request groups for special handling, e.g. routing
// single-file downloads with torrent content into the BitTorrent engine.
type Criteria interface {
	Match(g *RequestGroup) bool
}

// ContentTypeCriteria matches single-file request groups by filename
// extension or by exact content type. Extensions are compared
// byte-for-byte as path suffixes; content types must match exactly,
// including any parameters. Empty criteria sets match nothing.
type ContentTypeCriteria struct {
	extensions   []string
	contentTypes []string
}

// NewContentTypeCriteria creates a ContentTypeCriteria over the given
// extension and content-type sets.
func NewContentTypeCriteria(extensions, contentTypes []string) *ContentTypeCriteria {
	return &ContentTypeCriteria{extensions, contentTypes}
}

// Match returns true iff g holds exactly one file entry and either the
// file path carries a configured extension or its content type is in the
// configured set.
func (c *ContentTypeCriteria) Match(g *RequestGroup) bool {
	if len(g.Files) != 1 {
		return false
	}
	path := g.FirstFilePath()
	for _, ext := range c.extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	contentType := g.Files[0].ContentType
	for _, ct := range c.contentTypes {
		if contentType == ct {
			return true
		}
	}
	return false
}
