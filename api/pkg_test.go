package api

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/hub"
	"github.com/runforge/runforge/registry"
	"github.com/runforge/runforge/sequence"
	"github.com/runforge/runforge/service"
	"github.com/runforge/runforge/supervisor"
	"github.com/runforge/runforge/tests/helpers"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	cfg := &config.Config{
		Live: config.LiveConfig{
			ReplayBatch:  50,
			PingInterval: 30 * time.Second,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  30 * time.Second,
			SendBuffer:   16,
		},
	}
	st := helpers.NewTestStore(t)
	reg := registry.New(10, 50, time.Hour)
	svc := service.New(st, sequence.New(st), hub.New(zap.NewNop(), cfg.Live.SendBuffer), reg, cfg, zap.NewNop())
	sup := supervisor.New(svc, reg, "/bin/sh", zap.NewNop())

	return NewHandler(svc, sup, cfg, zap.NewNop())
}
