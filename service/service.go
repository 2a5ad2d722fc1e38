// Package service composes the event pipeline: sequencing, durable writes,
// summary maintenance and live fan-out.
package service

import (
	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/hub"
	"github.com/runforge/runforge/registry"
	"github.com/runforge/runforge/sequence"
	"github.com/runforge/runforge/store"

	"go.uber.org/zap"
)

// Service owns the insert path and the history queries.
type Service struct {
	store    store.Store
	seq      *sequence.Sequencer
	hub      *hub.Hub
	registry *registry.Registry
	config   *config.Config
	logger   *zap.Logger
}

// New creates the pipeline service.
func New(st store.Store, seq *sequence.Sequencer, h *hub.Hub, reg *registry.Registry, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		store:    st,
		seq:      seq,
		hub:      h,
		registry: reg,
		config:   cfg,
		logger:   logger,
	}
}

// Hub exposes the live fan-out for transport handlers.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// Registry exposes the ephemeral run cache for transport handlers.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}
