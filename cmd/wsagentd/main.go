// Command wsagentd runs a reverse WebSocket command agent that dials
// out to -url and forwards each incoming request frame to a local
// HTTP server at -target.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/QuadTriangle/wsagent/internal/agent"
	"github.com/QuadTriangle/wsagent/internal/handler/httpforward"
	"github.com/QuadTriangle/wsagent/internal/identity"
	"github.com/QuadTriangle/wsagent/internal/value"
)

func main() {
	var (
		url            = flag.String("url", "", "WebSocket URL to dial (required)")
		target         = flag.String("target", "http://localhost:3000", "local HTTP server to forward requests to")
		logPrefix      = flag.String("log-prefix", "", "prefix for log lines (defaults to a persistent agent id)")
		proxyURL       = flag.String("proxy-url", "", "HTTP CONNECT proxy URL")
		proxyUsername  = flag.String("proxy-username", "", "proxy basic-auth username")
		proxyPassword  = flag.String("proxy-password", "", "proxy basic-auth password")
		proxyTimeout   = flag.Float64("proxy-timeout", 30, "proxy_timeout config value in seconds (not applied by the dialer; -connect-timeout is the only dial timeout)")
		connectTimeout = flag.Float64("connect-timeout", 30, "seconds allowed for the WebSocket handshake")
		pingInterval   = flag.Float64("ping-interval", 30, "seconds between keep-alive pings while idle")
		pingTimeout    = flag.Float64("ping-timeout", 30, "seconds to wait for a pong before reconnecting")
		closeTimeout   = flag.Float64("close-timeout", 50, "seconds to wait for a graceful close to complete")
		reconnectDelay = flag.Float64("reconnect-timeout", 5, "seconds to wait before retrying a failed dial")
		forwardTimeout = flag.Duration("forward-timeout", 30*time.Second, "timeout for each forwarded local HTTP request")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -url wss://example.com/agent [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *url == "" {
		flag.Usage()
		os.Exit(1)
	}

	prefix := *logPrefix
	if prefix == "" {
		id, err := identity.AgentID()
		if err != nil {
			log.Printf("warning: could not load persistent agent id: %v", err)
		} else {
			prefix = fmt.Sprintf("[%s] ", id)
		}
	}

	initial := value.Object(map[string]value.Value{
		"url":               value.String(*url),
		"log_prefix":        value.String(prefix),
		"proxy_url":         value.String(*proxyURL),
		"proxy_username":    value.String(*proxyUsername),
		"proxy_password":    value.String(*proxyPassword),
		"proxy_timeout":     value.Number(*proxyTimeout),
		"connect_timeout":   value.Number(*connectTimeout),
		"ping_interval":     value.Number(*pingInterval),
		"ping_timeout":      value.Number(*pingTimeout),
		"close_timeout":     value.Number(*closeTimeout),
		"reconnect_timeout": value.Number(*reconnectDelay),
	})

	forwarder := httpforward.New(*target, *forwardTimeout, nil)

	a, err := agent.New(initial, forwarder.Handler())
	if err != nil {
		log.Fatalf("failed to construct agent: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down...", sig)
		a.Shutdown(nil)
	}()

	a.Initialize()
	a.Run()
	log.Println("agent stopped. goodbye!")
}
