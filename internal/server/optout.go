package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

func (s *Server) ListOptOuts(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	mealParam := strings.TrimSpace(c.Query("meal"))

	ctx := c.Request.Context()
	if date == "" && mealParam == "" {
		records, err := s.optSvc.List(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
		return
	}

	mealType, err := meal.ParseType(mealParam)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	records, err := s.optSvc.ListByDateMeal(ctx, date, mealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) CheckOptOut(c *gin.Context) {
	mealType, err := meal.ParseType(c.Query("meal"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	key, err := meal.NewKey(strings.TrimSpace(c.Query("userId")), strings.TrimSpace(c.Query("date")), mealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	optedOut, err := s.optSvc.Exists(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"optedOut": optedOut}})
}
