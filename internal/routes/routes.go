package routes

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	appmiddleware "github.com/janisto/spa-server/internal/middleware"
	"github.com/janisto/spa-server/internal/respond"
)

// InfoPath serves build metadata for the bundle being served.
const InfoPath = "/api/info"

// Info describes the running server and the bundle's build options.
type Info struct {
	Name    string         `json:"name"    doc:"Application name"    example:"spa-server"`
	Version string         `json:"version" doc:"Server build version" example:"1.2.3"`
	Build   map[string]any `json:"build"   doc:"Front-end build tool options, passed through as configured"`
}

// InfoOutput wraps Info in the shared envelope.
type InfoOutput = respond.Body[Info]

// Register wires all API routes into api.
func Register(api huma.API, info Info) {
	registerInfo(api, info)
}

func registerInfo(api huma.API, info Info) {
	if info.Build == nil {
		info.Build = map[string]any{}
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-info",
		Method:      http.MethodGet,
		Path:        InfoPath,
		Summary:     "Describe the served application",
		Tags:        []string{"Info"},
	}, func(ctx context.Context, _ *struct{}) (*InfoOutput, error) {
		appmiddleware.LogInfo(ctx, "info requested", zap.String("version", info.Version))
		out := respond.Success(ctx, Info{Name: info.Name, Version: info.Version, Build: maps.Clone(info.Build)})
		return &out, nil
	})
}
