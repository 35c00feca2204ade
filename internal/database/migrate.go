package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/mealsense/backend/internal/model"
)

// AutoMigrate creates the food and document chunk tables. On postgres it
// installs the pgvector extension first.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to install pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&model.Food{}, &model.DocumentChunk{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	log.Info("Database schema ready", zap.String("dialect", db.Dialector.Name()))
	return nil
}
