package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunReconcile triggers one reconciliation pass and returns its report.
func (s *Server) RunReconcile(c *gin.Context) {
	report, err := s.engine.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ReconcileStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.engine.Status()})
}
