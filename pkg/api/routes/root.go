package routes

import (
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/services"
	"github.com/danielgtaylor/huma/v2"
)

func RegisterAPI(api huma.API, svcs *services.Services) {
	if svcs == nil {
		RegisterUpload(api, nil)
		RegisterHealth(api, nil)
	} else {
		RegisterUpload(api, svcs.Upload)
		RegisterHealth(api, svcs)
	}
}
