package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/model"
)

// ImportResult summarizes a CSV import
type ImportResult struct {
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Foods    []model.Food `json:"-"`
}

var numericColumns = []string{
	model.NutrientCalories, model.NutrientCarbs, model.NutrientProtein, model.NutrientFat,
	model.NutrientSodium, model.NutrientFiber, model.NutrientSugar,
}

// ImportCSV upserts foods from a CSV with a header row. Rows are keyed by name
// and the last row for a name wins. Malformed rows are skipped.
func (s *FoodStore) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, apperrors.NewMalformedDataError("csv header", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := columns["name"]; !ok {
		return ImportResult{}, apperrors.NewMalformedDataError("csv header", errors.New("missing name column"))
	}

	var result ImportResult
	var order []string
	byName := make(map[string]model.Food)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			s.logger.Warn("Skipping unreadable CSV row", zap.Int("line", line), zap.Error(err))
			result.Skipped++
			continue
		}
		food, err := foodFromRecord(record, columns)
		if err != nil {
			s.logger.Warn("Skipping malformed CSV row", zap.Int("line", line), zap.Error(err))
			result.Skipped++
			continue
		}
		if _, seen := byName[food.Name]; !seen {
			order = append(order, food.Name)
		}
		byName[food.Name] = food
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		food := byName[name]
		if err := s.Upsert(ctx, &food); err != nil {
			s.logger.Warn("Skipping food that could not be stored", zap.String("name", name), zap.Error(err))
			result.Skipped++
			continue
		}
		result.Imported++
		result.Foods = append(result.Foods, food)
	}

	s.logger.Info("Imported foods",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func foodFromRecord(record []string, columns map[string]int) (model.Food, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	food := model.Food{
		Name:        field("name"),
		Category:    field("category"),
		Description: field("description"),
		Source:      string(model.SourceDatabase),
	}
	if food.Name == "" {
		return model.Food{}, errors.New("empty name")
	}

	values := make(map[string]float64, len(numericColumns))
	for _, col := range numericColumns {
		raw := field(col)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Food{}, fmt.Errorf("invalid %s %q: %w", col, raw, err)
		}
		values[col] = v
	}
	food.Calories = values[model.NutrientCalories]
	food.Carbs = values[model.NutrientCarbs]
	food.Protein = values[model.NutrientProtein]
	food.Fat = values[model.NutrientFat]
	food.Sodium = values[model.NutrientSodium]
	food.Fiber = values[model.NutrientFiber]
	food.Sugar = values[model.NutrientSugar]

	tags := strings.FieldsFunc(field("tags"), func(r rune) bool { return r == ';' || r == '|' })
	food.Tags = model.NewTags(tags...)
	return food, nil
}
