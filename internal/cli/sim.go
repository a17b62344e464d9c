package cli

import (
	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/config"
	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/schema"
	"github.com/roach88/anchor/internal/world"
)

// newSim assembles a sim from the configured sim and world settings.
func newSim(cfg config.Config, v *schema.Validator, hooks engine.Hooks, logger *zap.Logger, extra ...engine.SimOption) *engine.Sim {
	popts := []engine.PipelineOption{engine.WithPipelineLogger(logger)}
	if cfg.Sim.FloorClamp {
		popts = append(popts, engine.WithFloor(cfg.Sim.FloorY))
	} else {
		popts = append(popts, engine.WithoutFloor())
	}

	opts := []engine.SimOption{
		engine.WithClock(engine.NewClock(cfg.Sim.TickRate)),
		engine.WithHooks(hooks),
		engine.WithLogger(logger),
	}
	return engine.NewSim(
		engine.NewPipeline(v, popts...),
		world.New(
			world.WithHistory(cfg.World.History),
			world.WithTombstones(cfg.World.Tombstones),
			world.WithLogger(logger),
		),
		append(opts, extra...)...,
	)
}
