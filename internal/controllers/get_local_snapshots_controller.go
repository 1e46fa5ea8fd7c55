package controllers

import (
	"net/http"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/services"

	"github.com/gin-gonic/gin"
)

type getLocalSnapshotsController struct{ svc services.LocalSnapshotReader }

func NewGetLocalSnapshotsController(svc services.LocalSnapshotReader) *getLocalSnapshotsController {
	return &getLocalSnapshotsController{svc}
}

// Handle lists whatever the cache holds without touching the remote tenant.
// An absent store is an empty catalog, not an error.
func (h *getLocalSnapshotsController) Handle(c *gin.Context) {
	entries, err := h.svc.ListLocal()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
