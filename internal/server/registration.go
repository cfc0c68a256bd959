package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

type createRegistrationRequest struct {
	UserID         string `json:"userId"`
	Date           string `json:"date"`
	MealType       string `json:"mealType"`
	DishID         string `json:"dishId"`
	DishName       string `json:"dishName"`
	RestaurantName string `json:"restaurantName"`
	Price          int64  `json:"price"`
	Note           string `json:"note"`
}

func (s *Server) CreateRegistration(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.regSvc.Register(c.Request.Context(), regdomain.CreateRegistrationRequest{
		UserID:         strings.TrimSpace(req.UserID),
		Date:           strings.TrimSpace(req.Date),
		MealType:       strings.TrimSpace(req.MealType),
		DishID:         req.DishID,
		DishName:       req.DishName,
		RestaurantName: req.RestaurantName,
		Price:          req.Price,
		Note:           req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type noEatRequest struct {
	UserID   string `json:"userId"`
	Date     string `json:"date"`
	MealType string `json:"mealType"`
}

// CreateNoEatRegistration records a no-eat decision: ledger first, then
// the opt-out index, then the aggregate recount. A failure at any step is
// an explicit error response, never a silent partial write.
func (s *Server) CreateNoEatRegistration(c *gin.Context) {
	var req noEatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	mealType, err := meal.ParseType(req.MealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	record, err := s.regSvc.RegisterNoEat(ctx, strings.TrimSpace(req.UserID), strings.TrimSpace(req.Date), mealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	key := record.Key()
	if _, err := s.optSvc.Add(ctx, key); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) ListRegistrations(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	mealParam := strings.TrimSpace(c.Query("meal"))

	ctx := c.Request.Context()
	if date == "" && mealParam == "" {
		records, err := s.regSvc.List(ctx)
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
	records, err := s.regSvc.ListByDateMeal(ctx, date, mealType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
