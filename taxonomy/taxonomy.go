// Package taxonomy defines the closed enumerations every task is classified into.
// The sets are fixed at compile time and never change at runtime; any value
// outside them is rejected by classification, storage and the filter API.
package taxonomy

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Type is the task type (how the entry should be acted upon).
type Type string

const (
	// TypeFocus is for proactive tasks that need attention and shouldn't sit in a backlog.
	TypeFocus Type = "Focus"

	// TypeFollowUp is for interaction-based items that can wait for the next meeting.
	TypeFollowUp Type = "Follow up"

	// TypeSaveForLater is for recommendations and discoveries to reference later.
	TypeSaveForLater Type = "Save for later"
)

// Category is the task or life-event category.
type Category string

const (
	CategoryMyQuestions     Category = "My questions"
	CategoryQuestionsForMe  Category = "Questions for me"
	CategoryMyAsks          Category = "My asks"
	CategoryAsksOfMe        Category = "Asks of me"
	CategoryRecommendations Category = "Recommendations"
	CategoryFinds           Category = "Finds"
	CategoryIdeas           Category = "Ideas"
	CategoryRulesPromises   Category = "Rules / promises"
	CategoryTask            Category = "Task"
	CategoryNightOut        Category = "Night out"
	CategoryDateNight       Category = "Date night"
	CategoryFamilyDay       Category = "Family day"
)

// Subcategory is an optional finer-grained topic.
type Subcategory string

const (
	SubcategoryHouse         Subcategory = "House"
	SubcategoryCar           Subcategory = "Car"
	SubcategoryBoat          Subcategory = "Boat"
	SubcategoryTravel        Subcategory = "Travel"
	SubcategoryBooks         Subcategory = "Books"
	SubcategoryMovies        Subcategory = "Movies"
	SubcategoryShows         Subcategory = "Shows"
	SubcategoryMusic         Subcategory = "Music"
	SubcategoryEats          Subcategory = "Eats"
	SubcategoryPodcasts      Subcategory = "Podcasts"
	SubcategoryActivities    Subcategory = "Activities"
	SubcategoryAppearance    Subcategory = "Appearance"
	SubcategoryCareerNetwork Subcategory = "Career / network"
	SubcategoryRules         Subcategory = "Rules"
	SubcategoryFamilyFriends Subcategory = "Family / friends"
	SubcategoryGifts         Subcategory = "Gifts"
	SubcategoryFinances      Subcategory = "Finances"
	SubcategoryPhilanthropy  Subcategory = "Philanthropy"
	SubcategorySideQuests    Subcategory = "Side quests"
)

// Kind names one of the three enumerations.
type Kind string

const (
	KindType        Kind = "type"
	KindCategory    Kind = "category"
	KindSubcategory Kind = "subcategory"
)

// Defaults used for manual-entry drafts and when repairing invalid stored values.
const (
	DefaultType     = TypeFocus
	DefaultCategory = CategoryTask
)

var (
	types = []Type{TypeFocus, TypeFollowUp, TypeSaveForLater}

	categories = []Category{
		CategoryMyQuestions,
		CategoryQuestionsForMe,
		CategoryMyAsks,
		CategoryAsksOfMe,
		CategoryRecommendations,
		CategoryFinds,
		CategoryIdeas,
		CategoryRulesPromises,
		CategoryTask,
		CategoryNightOut,
		CategoryDateNight,
		CategoryFamilyDay,
	}

	subcategories = []Subcategory{
		SubcategoryHouse,
		SubcategoryCar,
		SubcategoryBoat,
		SubcategoryTravel,
		SubcategoryBooks,
		SubcategoryMovies,
		SubcategoryShows,
		SubcategoryMusic,
		SubcategoryEats,
		SubcategoryPodcasts,
		SubcategoryActivities,
		SubcategoryAppearance,
		SubcategoryCareerNetwork,
		SubcategoryRules,
		SubcategoryFamilyFriends,
		SubcategoryGifts,
		SubcategoryFinances,
		SubcategoryPhilanthropy,
		SubcategorySideQuests,
	}

	typeSet        = mapset.NewThreadUnsafeSet(types...)
	categorySet    = mapset.NewThreadUnsafeSet(categories...)
	subcategorySet = mapset.NewThreadUnsafeSet(subcategories...)
)

// Types returns the task types in declaration order.
func Types() []Type {
	return append([]Type(nil), types...)
}

// Categories returns the categories in declaration order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Subcategories returns the subcategories in declaration order.
func Subcategories() []Subcategory {
	return append([]Subcategory(nil), subcategories...)
}

// Labels returns the string labels of an enumeration in declaration order.
// Unknown kinds return nil.
func Labels(kind Kind) []string {
	switch kind {
	case KindType:
		return toStrings(types)
	case KindCategory:
		return toStrings(categories)
	case KindSubcategory:
		return toStrings(subcategories)
	}
	return nil
}

// IsValid reports whether value is a member of the given enumeration.
func IsValid(kind Kind, value string) bool {
	switch kind {
	case KindType:
		return Type(value).Valid()
	case KindCategory:
		return Category(value).Valid()
	case KindSubcategory:
		return Subcategory(value).Valid()
	}
	return false
}

// Valid reports whether t is a known task type.
func (t Type) Valid() bool { return typeSet.Contains(t) }

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return categorySet.Contains(c) }

// Valid reports whether s is a known subcategory.
func (s Subcategory) Valid() bool { return subcategorySet.Contains(s) }

// EnumError reports a value outside one of the enumerations.
type EnumError struct {
	Kind  Kind
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
}

// ParseType converts s to a Type, rejecting values outside the taxonomy.
func ParseType(s string) (Type, error) {
	if t := Type(s); t.Valid() {
		return t, nil
	}
	return "", &EnumError{Kind: KindType, Value: s}
}

// ParseCategory converts s to a Category, rejecting values outside the taxonomy.
func ParseCategory(s string) (Category, error) {
	if c := Category(s); c.Valid() {
		return c, nil
	}
	return "", &EnumError{Kind: KindCategory, Value: s}
}

// ParseSubcategory converts s to a Subcategory, rejecting values outside the taxonomy.
func ParseSubcategory(s string) (Subcategory, error) {
	if sc := Subcategory(s); sc.Valid() {
		return sc, nil
	}
	return "", &EnumError{Kind: KindSubcategory, Value: s}
}

// NormalizeType returns t when valid, otherwise DefaultType.
func NormalizeType(t Type) Type {
	if t.Valid() {
		return t
	}
	return DefaultType
}

// NormalizeCategory returns c when valid, otherwise DefaultCategory.
func NormalizeCategory(c Category) Category {
	if c.Valid() {
		return c
	}
	return DefaultCategory
}

// NormalizeSubcategory returns s when it points at a valid subcategory, otherwise nil.
func NormalizeSubcategory(s *Subcategory) *Subcategory {
	if s == nil || !s.Valid() {
		return nil
	}
	v := *s
	return &v
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
