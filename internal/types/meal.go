package types

// Meal describes one meal of a generated plan, as much as the image prompt needs
type Meal struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Cuisine     string `json:"cuisine"`
	// MealType is breakfast, lunch, dinner, snack or dessert
	MealType string `json:"meal_type"`
}
