package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/realtime"
)

// newHTTPServer builds the API server. Every request context derives from
// base, so cancelling base releases long-lived SSE and WebSocket handlers.
func newHTTPServer(base context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// newEventBus picks the session event transport. Only the Redis bus reaches
// every replica; local is for a single process.
func newEventBus(kind string, rdb *redis.Client, log zerolog.Logger) realtime.Bus {
	if strings.EqualFold(kind, "local") {
		log.Warn().Msg("Using in-process event bus; run a single replica")
		return realtime.NewLocalBus()
	}
	return realtime.NewRedisBus(rdb, log)
}
