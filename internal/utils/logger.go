package utils

import (
	"go.uber.org/zap"
)

// NewLogger creates the application logger. The production environment
// gets JSON output at info level; anything else gets the development
// console encoder at debug level.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
