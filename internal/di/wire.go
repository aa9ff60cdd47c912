//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"goreels/internal/config"
)

// InitializeApp is expanded by wire into wire_gen.go.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(EngineSet)
	return &App{}, nil, nil // dummy for compilation
}
