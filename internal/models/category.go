// Package models содержит доменные структуры движка подбора помощников:
// подписчиков, запросы о помощи, записи о доставке уведомлений и регистрации помощников.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// Category тег категории запроса о помощи.
type Category string

// Известные категории запросов.
const (
	CategoryEmergency Category = "EMERGENCY"
	CategoryMedical   Category = "MEDICAL"
	CategoryGrocery   Category = "GROCERY"
	CategoryRepair    Category = "REPAIR"
	CategoryTransport Category = "TRANSPORT"
	CategoryPets      Category = "PETS"
	CategoryTutoring  Category = "TUTORING"
	CategoryOther     Category = "OTHER"
)

var categoryLabels = map[Category]string{
	CategoryEmergency: "Emergency",
	CategoryMedical:   "Medical help",
	CategoryGrocery:   "Groceries",
	CategoryRepair:    "Repairs",
	CategoryTransport: "Transport",
	CategoryPets:      "Pet care",
	CategoryTutoring:  "Tutoring",
	CategoryOther:     "Other",
}

// ParseCategory приводит строку к известной категории.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Valid сообщает, входит ли категория в известный набор.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label возвращает человекочитаемое название категории.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	s := strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
	if s == "" {
		return categoryLabels[CategoryOther]
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CategorySet набор категорий, на которые подписан пользователь.
// Пустой набор означает «все категории».
type CategorySet map[Category]struct{}

// NewCategorySet создает набор из переданных категорий.
func NewCategorySet(cs ...Category) CategorySet {
	set := make(CategorySet, len(cs))
	for _, c := range cs {
		set[c] = struct{}{}
	}
	return set
}

// Allows проверяет, разрешена ли категория.
func (s CategorySet) Allows(c Category) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[c]
	return ok
}

// Strings возвращает отсортированный список тегов.
func (s CategorySet) Strings() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}
