package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/report"
	"github.com/hrk-pass/household-account-book/internal/repository"
	"github.com/hrk-pass/household-account-book/internal/state"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Categories
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	CreateCategory(ctx context.Context, userID string, req models.CategoryRequest) (*models.Category, error)
	UpdateCategory(ctx context.Context, userID, categoryID string, req models.CategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, userID, categoryID string) error

	// Expenses
	ListExpenses(ctx context.Context, userID string) ([]models.Expense, error)
	GetExpense(ctx context.Context, userID, expenseID string) (*models.Expense, error)
	CreateExpense(ctx context.Context, userID string, req models.ExpenseRequest) (*models.Expense, error)
	UpdateExpense(ctx context.Context, userID, expenseID string, req models.ExpenseRequest) (*models.Expense, error)
	DeleteExpense(ctx context.Context, userID, expenseID string) error

	// Availability
	AvailableIngredients(ctx context.Context, userID string) ([]models.Expense, error)
	AvailableMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error)

	// Meal preps
	CreateMealPrep(ctx context.Context, userID string, req models.CreateMealPrepRequest) (*models.MealPrep, error)
	GetMealPrep(ctx context.Context, userID, mealPrepID string) (*models.MealPrep, error)
	ListMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error)
	UpdateMealPrep(ctx context.Context, userID, mealPrepID string, req models.UpdateMealPrepRequest) (*models.MealPrep, error)
	DeleteMealPrep(ctx context.Context, userID, mealPrepID string) error

	// Meal logs
	LogMeal(ctx context.Context, userID string, req models.CreateMealLogRequest) (*models.MealLog, error)
	GetMealLog(ctx context.Context, userID, mealLogID string) (*models.MealLog, error)
	ListMealLogs(ctx context.Context, userID string, filter models.MealLogFilter) ([]models.MealLog, error)
	UpdateMealLog(ctx context.Context, userID, mealLogID string, req models.UpdateMealLogRequest) (*models.MealLog, error)
	DeleteMealLog(ctx context.Context, userID, mealLogID string) error

	// State returns every collection with the derived availability lists
	State(ctx context.Context, userID string) (*state.View, error)

	// Reports
	MonthlyReport(ctx context.Context, userID, month string) (*report.MonthlySummary, error)
	WeeklyReport(ctx context.Context, userID, start string) (*report.WeeklySummary, error)
	DailyReport(ctx context.Context, userID, month string) (*report.DailySummary, error)
}

// Notifier is told which collections of a user changed after a write.
type Notifier interface {
	Publish(ctx context.Context, userID string, collections ...models.Collection) error
}

// Option configures a DefaultService
type Option func(*DefaultService)

// WithLedger sets the ledger used for consumption updates
func WithLedger(l *ledger.Ledger) Option {
	return func(s *DefaultService) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithNotifier sets the change notifier
func WithNotifier(n Notifier) Option {
	return func(s *DefaultService) {
		s.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *DefaultService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenDuration sets how long issued tokens stay valid
func WithTokenDuration(d time.Duration) Option {
	return func(s *DefaultService) {
		if d > 0 {
			s.tokenDuration = d
		}
	}
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	ledger        *ledger.Ledger
	notifier      Notifier
	logger        *zap.Logger
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, jwtSecret string, opts ...Option) Service {
	s := &DefaultService{
		repo:          repo,
		logger:        zap.NewNop(),
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.New(repo, ledger.WithLogger(s.logger))
	}
	return s
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}

	if existingUser != nil {
		return nil, fmt.Errorf("%w: user with this email already exists", models.ErrConflict)
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:       uuid.New().String(),
		Email:    req.Email,
		Name:     req.Name,
		Password: string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info("user signed up", zap.String("userId", user.ID))
	return &models.AuthResponse{
		Status: "success",
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, fmt.Errorf("%w: invalid email or password", models.ErrUnauthenticated)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", models.ErrUnauthenticated)
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub": user.ID, // subject
		"exp": expirationTime.Unix(),
		"iat": time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func requireUser(userID string) error {
	if userID == "" {
		return models.ErrUnauthenticated
	}
	return nil
}

// notify tells subscribers about changed collections. The write has
// already happened, so a failure here is only logged.
func (s *DefaultService) notify(ctx context.Context, userID string, collections ...models.Collection) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, userID, collections...); err != nil {
		s.logger.Warn("failed to publish update",
			zap.String("userId", userID), zap.Any("collections", collections), zap.Error(err))
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{models.ErrInvalidInput}, args...)...)
}
