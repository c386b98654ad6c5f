package models

import "github.com/shopspring/decimal"

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CategoryRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color" binding:"required"`
}

// ExpenseRequest creates or replaces an expense. The consumption rate is
// not part of it: only the ledger moves that value.
type ExpenseRequest struct {
	Date        string          `json:"date" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"required"`
	CategoryID  *string         `json:"category"`
	SubCategory SubCategory     `json:"subCategory"`
}

type CreateMealPrepRequest struct {
	Name string `json:"name" binding:"required"`
	Date string `json:"date" binding:"required"`
	// ConsumptionUpdates maps ingredient id to the percent used by the batch.
	ConsumptionUpdates map[string]int `json:"consumptionUpdates" binding:"required"`
	Notes              string         `json:"notes"`
}

type CreateMealLogRequest struct {
	Date     string   `json:"date" binding:"required"`
	MealType MealType `json:"mealType" binding:"required"`
	// Ingredients maps ingredient id to the percent eaten in this meal.
	Ingredients map[string]int `json:"ingredients"`
	// MealPreps maps meal-prep id to the percent of the batch eaten.
	MealPreps map[string]int `json:"mealPreps"`
	Notes     string         `json:"notes"`
}

// UpdateMealPrepRequest edits the descriptive fields of a batch. The
// ingredients and the consumption recorded for them cannot change.
type UpdateMealPrepRequest struct {
	Name  string `json:"name" binding:"required"`
	Date  string `json:"date" binding:"required"`
	Notes string `json:"notes"`
}

// UpdateMealLogRequest edits the descriptive fields of a meal.
type UpdateMealLogRequest struct {
	Date     string   `json:"date" binding:"required"`
	MealType MealType `json:"mealType" binding:"required"`
	Notes    string   `json:"notes"`
}

// MealLogFilter narrows the meal history. Empty fields match every meal.
type MealLogFilter struct {
	MealType MealType `form:"mealType"`
	Date     string   `form:"date"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type OutcomeResponse struct {
	TargetID string `json:"targetId"`
	Kind     string `json:"kind"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Outcomes []OutcomeResponse `json:"outcomes,omitempty"`
}

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
