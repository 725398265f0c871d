package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/nbdctl/internal/attach"
)

type fileConfig struct {
	Device       string   `toml:"device"`
	Socket       string   `toml:"socket"`
	Log          string   `toml:"log"`
	KillScript   string   `toml:"kill_script"`
	ClientDirs   []string `toml:"client_dirs"`
	PollInterval string   `toml:"poll_interval"`
	StatusAddr   string   `toml:"status_addr"`
}

type configDefaults struct {
	Device       string
	Socket       string
	Log          string
	KillScript   string
	StatusAddr   string
	ClientDirs   []string
	PollInterval time.Duration
}

func loadDefaults(path string) (configDefaults, error) {
	var d configDefaults

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return configDefaults{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("device") {
		d.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("socket") {
		d.Socket = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("log") {
		d.Log = strings.TrimSpace(raw.Log)
	}
	if meta.IsDefined("kill_script") {
		d.KillScript = strings.TrimSpace(raw.KillScript)
	}
	if meta.IsDefined("status_addr") {
		d.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("client_dirs") {
		d.ClientDirs = normalizeDirs(raw.ClientDirs)
	}
	if meta.IsDefined("poll_interval") {
		interval, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return configDefaults{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		d.PollInterval = interval
	}

	return d, nil
}

// applyDefaults fills options from the config file; flags given on the
// command line win.
func applyDefaults(opts *attach.Options, d configDefaults, set map[string]bool) {
	if !set["d"] && d.Device != "" {
		opts.DeviceNode = d.Device
	}
	if !set["u"] && d.Socket != "" {
		opts.SocketPath = d.Socket
	}
	if !set["l"] && d.Log != "" {
		opts.LogPath = d.Log
	}
	if !set["k"] && d.KillScript != "" {
		opts.ScriptPath = d.KillScript
	}
	if !set["status-addr"] && d.StatusAddr != "" {
		opts.StatusAddr = d.StatusAddr
	}
	if len(d.ClientDirs) > 0 {
		opts.ClientDirs = d.ClientDirs
	}
	if d.PollInterval > 0 {
		opts.PollInterval = d.PollInterval
	}
}

func normalizeDirs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, dir := range in {
		v := strings.TrimSpace(dir)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
