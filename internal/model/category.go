package model

import "time"

// DefaultCategoryColor is used when a category is created without a valid color.
const DefaultCategoryColor = "#238636"

// Category mirrors a row of `note_categories`.  Names are unique per user.
type Category struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon,omitempty"`
	SortOrder int       `json:"sortOrder"`
	NoteCount int       `json:"noteCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CategoryPatch is a partial update; nil fields are left untouched.
type CategoryPatch struct {
	Name      *string
	Color     *string
	Icon      *string
	SortOrder *int
}

func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Color == nil && p.Icon == nil && p.SortOrder == nil
}
