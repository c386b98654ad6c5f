package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/realtime"
	"github.com/hrk-pass/household-account-book/internal/service"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	service service.Service
	hub     *realtime.Hub
	logger  *zap.Logger
}

// NewHandler creates a new Handler. hub may be nil, in which case the
// websocket endpoint is not registered.
func NewHandler(svc service.Service, hub *realtime.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: svc,
		hub:     hub,
		logger:  logger,
	}
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware())
	{
		protected.GET("/categories", h.ListCategories)
		protected.POST("/categories", h.CreateCategory)
		protected.PUT("/categories/:id", h.UpdateCategory)
		protected.DELETE("/categories/:id", h.DeleteCategory)

		protected.GET("/expenses", h.ListExpenses)
		protected.POST("/expenses", h.CreateExpense)
		protected.GET("/expenses/:id", h.GetExpense)
		protected.PUT("/expenses/:id", h.UpdateExpense)
		protected.DELETE("/expenses/:id", h.DeleteExpense)

		protected.GET("/ingredients/available", h.AvailableIngredients)

		protected.GET("/meal-preps", h.ListMealPreps)
		protected.POST("/meal-preps", h.CreateMealPrep)
		protected.GET("/meal-preps/available", h.AvailableMealPreps)
		protected.GET("/meal-preps/:id", h.GetMealPrep)
		protected.PUT("/meal-preps/:id", h.UpdateMealPrep)
		protected.DELETE("/meal-preps/:id", h.DeleteMealPrep)

		protected.GET("/meal-logs", h.ListMealLogs)
		protected.POST("/meal-logs", h.LogMeal)
		protected.GET("/meal-logs/:id", h.GetMealLog)
		protected.PUT("/meal-logs/:id", h.UpdateMealLog)
		protected.DELETE("/meal-logs/:id", h.DeleteMealLog)

		protected.GET("/state", h.State)

		protected.GET("/reports/monthly", h.MonthlyReport)
		protected.GET("/reports/weekly", h.WeeklyReport)
		protected.GET("/reports/daily", h.DailyReport)
	}

	// Browsers cannot set headers on websocket upgrades, so only this
	// route takes the token from the query string.
	if h.hub != nil {
		router.GET(WebsocketPath, QueryToken(), AuthMiddleware(), h.Subscribe)
	}
}

// Auth handlers
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Category handlers
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req models.CategoryRequest
	if !h.bind(c, &req) {
		return
	}

	category, err := h.service.CreateCategory(c.Request.Context(), userID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	var req models.CategoryRequest
	if !h.bind(c, &req) {
		return
	}

	category, err := h.service.UpdateCategory(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Status: "success", Message: "Category deleted"})
}

// Expense handlers
func (h *Handler) ListExpenses(c *gin.Context) {
	expenses, err := h.service.ListExpenses(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *Handler) GetExpense(c *gin.Context) {
	expense, err := h.service.GetExpense(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (h *Handler) CreateExpense(c *gin.Context) {
	var req models.ExpenseRequest
	if !h.bind(c, &req) {
		return
	}

	expense, err := h.service.CreateExpense(c.Request.Context(), userID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func (h *Handler) UpdateExpense(c *gin.Context) {
	var req models.ExpenseRequest
	if !h.bind(c, &req) {
		return
	}

	expense, err := h.service.UpdateExpense(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (h *Handler) DeleteExpense(c *gin.Context) {
	if err := h.service.DeleteExpense(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Status: "success", Message: "Expense deleted"})
}

func (h *Handler) AvailableIngredients(c *gin.Context) {
	expenses, err := h.service.AvailableIngredients(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

// Meal-prep handlers
func (h *Handler) ListMealPreps(c *gin.Context) {
	mealPreps, err := h.service.ListMealPreps(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealPreps)
}

func (h *Handler) AvailableMealPreps(c *gin.Context) {
	mealPreps, err := h.service.AvailableMealPreps(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealPreps)
}

func (h *Handler) GetMealPrep(c *gin.Context) {
	mealPrep, err := h.service.GetMealPrep(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealPrep)
}

func (h *Handler) CreateMealPrep(c *gin.Context) {
	var req models.CreateMealPrepRequest
	if !h.bind(c, &req) {
		return
	}

	mealPrep, err := h.service.CreateMealPrep(c.Request.Context(), userID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mealPrep)
}

func (h *Handler) UpdateMealPrep(c *gin.Context) {
	var req models.UpdateMealPrepRequest
	if !h.bind(c, &req) {
		return
	}

	mealPrep, err := h.service.UpdateMealPrep(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealPrep)
}

func (h *Handler) DeleteMealPrep(c *gin.Context) {
	if err := h.service.DeleteMealPrep(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Status: "success", Message: "Meal prep deleted"})
}

// Meal-log handlers
func (h *Handler) ListMealLogs(c *gin.Context) {
	var filter models.MealLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	mealLogs, err := h.service.ListMealLogs(c.Request.Context(), userID(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealLogs)
}

func (h *Handler) GetMealLog(c *gin.Context) {
	mealLog, err := h.service.GetMealLog(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealLog)
}

func (h *Handler) LogMeal(c *gin.Context) {
	var req models.CreateMealLogRequest
	if !h.bind(c, &req) {
		return
	}

	mealLog, err := h.service.LogMeal(c.Request.Context(), userID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mealLog)
}

func (h *Handler) UpdateMealLog(c *gin.Context) {
	var req models.UpdateMealLogRequest
	if !h.bind(c, &req) {
		return
	}

	mealLog, err := h.service.UpdateMealLog(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mealLog)
}

func (h *Handler) DeleteMealLog(c *gin.Context) {
	if err := h.service.DeleteMealLog(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Status: "success", Message: "Meal log deleted"})
}

// State returns every collection of the user with the availability lists.
func (h *Handler) State(c *gin.Context) {
	view, err := h.service.State(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Report handlers
func (h *Handler) MonthlyReport(c *gin.Context) {
	summary, err := h.service.MonthlyReport(c.Request.Context(), userID(c), c.Query("month"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) WeeklyReport(c *gin.Context) {
	summary, err := h.service.WeeklyReport(c.Request.Context(), userID(c), c.Query("start"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) DailyReport(c *gin.Context) {
	summary, err := h.service.DailyReport(c.Request.Context(), userID(c), c.Query("month"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Helpers
func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// respondError maps a service error onto the HTTP error response.
func (h *Handler) respondError(c *gin.Context, err error) {
	resp := models.ErrorResponse{Status: "error", Message: err.Error()}
	status := http.StatusInternalServerError

	var partial *ledger.PartialFailureError
	switch {
	case errors.As(err, &partial):
		status = http.StatusBadGateway
		resp.Code = "PARTIAL_FAILURE"
		resp.Outcomes = outcomes(partial.Result)
	case errors.Is(err, models.ErrUnauthenticated):
		status = http.StatusUnauthorized
		resp.Code = "UNAUTHORIZED"
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		resp.Code = "NOT_FOUND"
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
		resp.Code = "INVALID_REQUEST"
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
		resp.Code = "CONFLICT"
	default:
		resp.Code = "INTERNAL_ERROR"
		resp.Message = "Internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("userId", userID(c)),
			zap.Error(err))
	}
	c.JSON(status, resp)
}

func outcomes(result ledger.BatchResult) []models.OutcomeResponse {
	out := make([]models.OutcomeResponse, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		r := models.OutcomeResponse{
			TargetID: o.TargetID,
			Kind:     string(o.Kind),
			Before:   o.Before,
			After:    o.After,
			Skipped:  o.Skipped,
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		out = append(out, r)
	}
	return out
}
