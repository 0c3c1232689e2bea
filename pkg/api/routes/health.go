package routes

import (
	"context"
	"net/http"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/services"
	"github.com/danielgtaylor/huma/v2"
)

type HealthOutput struct {
	Body struct {
		Status    string `json:"status" doc:"Service status" example:"ok"`
		Observers int    `json:"observers" doc:"Connected dashboard observers"`
	}
}

func RegisterHealth(api huma.API, svcs *services.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		resp := &HealthOutput{}
		resp.Body.Status = "ok"
		if svcs != nil && svcs.Dashboard != nil {
			resp.Body.Observers = svcs.Dashboard.ObserverCount()
		}
		return resp, nil
	})
}
