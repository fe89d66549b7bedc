package main

import (
	"net"
	"os"
	"path/filepath"

	"github.com/joshp123/smartmeter/internal/config"
)

const defaultAddr = "localhost:9000"

func resolveAddr() string {
	if value := os.Getenv("SMARTMETER_GRPC_ADDR"); value != "" {
		return value
	}
	if value := os.Getenv("SMARTMETER_CONFIG"); value != "" {
		if addr := addrFromConfig(value); addr != "" {
			return addr
		}
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return defaultAddr
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "smartmeter", "config.pbtxt"))
	}
	return paths
}

// addrFromConfig returns a dialable address for the daemon's gRPC listener.
// A wildcard host is replaced with localhost.
func addrFromConfig(path string) string {
	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		return ""
	}
	return dialable(cfg.Core.GRPCAddr)
}

func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
