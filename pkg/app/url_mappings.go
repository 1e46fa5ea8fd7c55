package app

import (
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/controllers"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/get-snapshots", controllers.NewGetSnapshotsController(app.Reconciler).Handle)
	app.Engine.GET("/get-local-snapshots", controllers.NewGetLocalSnapshotsController(app.LocalReader).Handle)
	app.Engine.GET("/healthz", controllers.NewHealthController().Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The embed front-end loads artifact files straight off the store.
	app.Engine.Static(app.Config.PublicPrefix, app.Config.StoreRoot)
}
