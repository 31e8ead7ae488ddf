package categories

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

type UpdateCategoryRequest struct {
	Name       string `json:"name" binding:"required"`
	IsDisabled bool   `json:"is_disabled"`
}

// Category groups catalogue entries for browsing and filtering. Disabled
// categories stay referenced by existing books but drop out of the pickers.
type Category struct {
	CategoryID uint   `json:"id"`
	Name       string `json:"name"`
	IsDisabled bool   `json:"is_disabled"`
}
