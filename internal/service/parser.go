package service

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/model"
)

// ParsedItem is one recipe or food recovered from generated text
type ParsedItem struct {
	Title        string
	Ingredients  []string
	Instructions string
	Nutrition    model.NutritionSnapshot
	Reason       string
}

type parserState int

const (
	stateScanning parserState = iota
	stateInItem
)

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionInstructions
	sectionNutrition
	sectionReason
)

var (
	numberedLine = regexp.MustCompile(`^\d+\.`)
	firstInteger = regexp.MustCompile(`\d+`)

	itemKeywords = []string{"레시피", "식단", "recipe", "meal"}

	sectionKeywords = []struct {
		section  section
		keywords []string
	}{
		{sectionIngredients, []string{"재료", "ingredients"}},
		{sectionInstructions, []string{"조리법", "instructions", "만드는 방법"}},
		{sectionNutrition, []string{"영양정보", "nutrition"}},
		{sectionReason, []string{"추천이유", "reason"}},
	}

	nutrientKeys = []struct {
		nutrient string
		keys     []string
	}{
		{model.NutrientCalories, []string{"칼로리", "calories"}},
		{model.NutrientProtein, []string{"단백질", "protein"}},
		{model.NutrientCarbs, []string{"탄수화물", "carbs"}},
		{model.NutrientFat, []string{"지방", "fat"}},
	}
)

// ResponseParser turns completion text into structured items.
// Input it cannot understand yields fewer items, never an error.
type ResponseParser struct {
	logger *zap.Logger
}

// NewResponseParser creates a new ResponseParser instance
func NewResponseParser(log *zap.Logger) *ResponseParser {
	return &ResponseParser{logger: log}
}

type parseRun struct {
	state   parserState
	section section
	current *ParsedItem
	items   []ParsedItem
}

// ParseItems scans text line by line. Numbered lines and lines starting with
// an item keyword open a new item; section headers switch what the following
// lines are collected into.
func (p *ResponseParser) ParseItems(text string) (items []ParsedItem) {
	run := &parseRun{}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered from panic while parsing response", zap.Any("panic", r))
			run.flush()
			items = run.items
		}
	}()

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		run.step(line)
	}
	run.flush()

	if run.items == nil {
		return []ParsedItem{}
	}
	return run.items
}

func (r *parseRun) step(line string) {
	if isItemBoundary(line) {
		r.flush()
		r.current = &ParsedItem{
			Title:     itemTitle(line),
			Nutrition: model.NutritionSnapshot{},
		}
		r.state = stateInItem
		r.section = sectionNone
		return
	}
	if r.state == stateScanning {
		return
	}
	if s, ok := sectionHeader(line); ok {
		r.section = s
		return
	}

	item := r.current
	switch r.section {
	case sectionIngredients:
		if ingredient, ok := ingredientText(line); ok {
			item.Ingredients = append(item.Ingredients, ingredient)
		}
	case sectionInstructions:
		if item.Instructions != "" {
			item.Instructions += "\n"
		}
		item.Instructions += line
	case sectionNutrition:
		if nutrient, value, ok := nutritionLine(line); ok {
			item.Nutrition[nutrient] = value
		}
	case sectionReason:
		if item.Reason != "" {
			item.Reason += " "
		}
		item.Reason += line
	}
}

func (r *parseRun) flush() {
	if r.current != nil {
		r.items = append(r.items, *r.current)
		r.current = nil
	}
	r.state = stateScanning
	r.section = sectionNone
}

func isItemBoundary(line string) bool {
	if numberedLine.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range itemKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

func itemTitle(line string) string {
	var title string
	if _, after, found := strings.Cut(line, ":"); found {
		title = after
	} else {
		title = numberedLine.ReplaceAllString(line, "")
	}
	return strings.Trim(strings.TrimSpace(title), "*#")
}

func sectionHeader(line string) (section, bool) {
	lower := strings.ToLower(line)
	for _, s := range sectionKeywords {
		for _, kw := range s.keywords {
			if strings.HasPrefix(lower, kw) {
				return s.section, true
			}
		}
	}
	return sectionNone, false
}

// ingredientText splits on the first of ':', '-' or '•' found, in that priority
func ingredientText(line string) (string, bool) {
	for _, delim := range []string{":", "-", "•"} {
		if _, after, found := strings.Cut(line, delim); found {
			after = strings.TrimSpace(after)
			return after, after != ""
		}
	}
	return "", false
}

func nutritionLine(line string) (string, float64, bool) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return "", 0, false
	}
	digits := firstInteger.FindString(value)
	if digits == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	for _, nk := range nutrientKeys {
		for _, k := range nk.keys {
			if strings.Contains(key, k) {
				return nk.nutrient, float64(n), true
			}
		}
	}
	return "", 0, false
}

// ToRecipes converts parsed items into recipe recommendations
func ToRecipes(items []ParsedItem, source model.Source) []model.RecipeRecommendation {
	out := make([]model.RecipeRecommendation, 0, len(items))
	for _, it := range items {
		ingredients := it.Ingredients
		if ingredients == nil {
			ingredients = []string{}
		}
		out = append(out, model.RecipeRecommendation{
			Title:        it.Title,
			Ingredients:  ingredients,
			Instructions: it.Instructions,
			Nutrition:    it.Nutrition,
			Reason:       it.Reason,
			Source:       source,
		})
	}
	return out
}

// ToRecommendations converts parsed items into food recommendations.
// Items without a title are dropped.
func ToRecommendations(items []ParsedItem, source model.Source) []model.Recommendation {
	out := make([]model.Recommendation, 0, len(items))
	for _, it := range items {
		if it.Title == "" {
			continue
		}
		out = append(out, model.Recommendation{
			Name:      it.Title,
			Reason:    it.Reason,
			Nutrition: it.Nutrition,
			Tags:      []string{},
			Source:    source,
		})
	}
	return out
}
