package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	orderdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

func (s *Server) GetOrder(c *gin.Context) {
	s.orderAction(c, s.orderSvc.Get)
}

func (s *Server) OpenOrder(c *gin.Context) {
	s.orderAction(c, s.orderSvc.Open)
}

func (s *Server) CloseOrder(c *gin.Context) {
	s.orderAction(c, s.orderSvc.Close)
}

func (s *Server) ToggleOrder(c *gin.Context) {
	s.orderAction(c, s.orderSvc.Toggle)
}

type headcountRequest struct {
	TotalPeople *int `json:"totalPeople"`
}

func (s *Server) SetHeadcount(c *gin.Context) {
	var req headcountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TotalPeople == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, mealType, err := orderSlot(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	order, err := s.orderSvc.SetTotalPeople(c.Request.Context(), date, mealType, *req.TotalPeople)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) orderAction(c *gin.Context, fn func(context.Context, string, meal.Type) (*orderdomain.DailyOrder, error)) {
	date, mealType, err := orderSlot(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	order, err := fn(c.Request.Context(), date, mealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func orderSlot(c *gin.Context) (string, meal.Type, error) {
	date, err := meal.ParseDate(strings.TrimSpace(c.Param("date")))
	if err != nil {
		return "", "", err
	}
	mealType, err := meal.ParseType(c.Param("meal"))
	if err != nil {
		return "", "", err
	}
	return date, mealType, nil
}
