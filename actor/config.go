// MIT License
//
// Copyright (c) 2023-2026 Threadloom Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package actor

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// ServiceConfig is the creation-time configuration of one service. Extra
// keys beyond the recognized set are kept verbatim in Extra and forwarded
// to the service's Init.
type ServiceConfig struct {
	// Name is the service name. Required.
	Name string `json:"name"`
	// File selects the registered service factory. Required.
	File string `json:"file"`
	// Unique registers Name in the global directory; creation fails on
	// collision.
	Unique bool `json:"unique"`
	// MemLimit caps tracked allocations in bytes. Zero means unlimited.
	MemLimit int64 `json:"memlimit"`
	// Path is an appended search path, forwarded opaquely.
	Path string `json:"path"`
	// CPath is an appended native search path, forwarded opaquely.
	CPath string `json:"cpath"`
	// Extra holds unrecognized keys, forwarded opaquely.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps unrecognized keys in Extra.
func (c *ServiceConfig) UnmarshalJSON(data []byte) error {
	type alias ServiceConfig
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range []string{"name", "file", "unique", "memlimit", "path", "cpath"} {
		delete(raw, k)
	}
	*c = ServiceConfig(known)
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// MarshalJSON folds Extra back into the object.
func (c ServiceConfig) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"name":     c.Name,
		"file":     c.File,
		"unique":   c.Unique,
		"memlimit": c.MemLimit,
	}
	if c.Path != "" {
		out["path"] = c.Path
	}
	if c.CPath != "" {
		out["cpath"] = c.CPath
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// Validate checks the required keys.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service config: name is required")
	}
	if c.File == "" {
		return fmt.Errorf("service config %q: file is required", c.Name)
	}
	return nil
}

// ServerConfig configures one node.
type ServerConfig struct {
	// Sid is the node id, stamped into log paths.
	Sid uint16 `json:"sid"`
	// Name is the node name.
	Name string `json:"name"`
	// Thread is the worker count. Defaults to the hardware concurrency.
	Thread int `json:"thread"`
	// Log is a log path template; #sid and #date are expanded.
	Log string `json:"log"`
	// Services are constructed at bootstrap, in order.
	Services []ServiceConfig `json:"services"`
}

// LoadServerConfig reads a JSON array of node configs and returns the entry
// with the given sid.
func LoadServerConfig(path string, sid uint16) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}
	var nodes []ServerConfig
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	for i := range nodes {
		if nodes[i].Sid == sid {
			cfg := nodes[i]
			cfg.applyDefaults()
			return &cfg, nil
		}
	}
	return nil, fmt.Errorf("server config: no node with sid %d", sid)
}

func (c *ServerConfig) applyDefaults() {
	if c.Thread <= 0 {
		c.Thread = runtime.NumCPU()
	}
	if c.Thread > maxWorkers {
		c.Thread = maxWorkers
	}
}
