package engine

import (
	"context"

	"gradekit/core"
)

// GradeService bundles the query and mutation services over one store and event bus.
type GradeService struct {
	*QueryService
	*MutationService
	bus *EventBus
}

func NewGradeService(store ScoreStore, bus *EventBus, settings Settings) *GradeService {
	if store == nil || bus == nil {
		panic("NewGradeService requires non-nil store and bus")
	}
	return &GradeService{
		QueryService:    NewQueryService(store, settings),
		MutationService: NewMutationService(store, bus, settings),
		bus:             bus,
	}
}

// Subscribe convenience method.
func (g *GradeService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return g.bus.Subscribe(typ, handler)
}

func (g *GradeService) Close() { g.bus.Close() }
