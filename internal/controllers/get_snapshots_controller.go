package controllers

import (
	"net/http"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/services"

	"github.com/gin-gonic/gin"
)

type getSnapshotsController struct{ svc services.CatalogReconciler }

func NewGetSnapshotsController(svc services.CatalogReconciler) *getSnapshotsController {
	return &getSnapshotsController{svc}
}

// Handle refreshes the cache from the remote catalog and returns the
// resulting entries. Individual task failures are not errors: those tasks
// are simply absent from the response.
func (h *getSnapshotsController) Handle(c *gin.Context) {
	entries, _, err := h.svc.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
