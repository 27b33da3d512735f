package schema

import (
	"fmt"
	"time"
)

const (
	// DefaultCategoryID is the id of the implicit catch-all category.
	DefaultCategoryID = "other"

	// DefaultCategoryName is the name bookmarks fall back to when their
	// category is deleted or cannot be resolved. Bookmarks reference
	// categories by name, not id, so this literal appears in bookmark rows.
	DefaultCategoryName = "Other"
)

// Category is a one-level classification label for bookmarks.
//
// The tree has depth <= 2: top-level categories may carry children, children
// never do. All ids share one namespace across the whole tree. Sibling order
// is positional; SortOrder is filled in from the remote sort_order column on
// pull and derived from slice position on push.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	ParentID string `json:"parentId,omitempty"`

	SortOrder int `json:"sortOrder,omitempty"`

	// Children is only populated on top-level categories.
	Children []Category `json:"children,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks if the Category has valid field values.
// A category with children must itself be top-level (depth <= 2).
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.ParentID != "" && len(c.Children) > 0 {
		return fmt.Errorf("category %s is nested and cannot have children", c.ID)
	}
	for i := range c.Children {
		child := &c.Children[i]
		if err := child.Validate(); err != nil {
			return fmt.Errorf("invalid child of %s: %w", c.ID, err)
		}
		if len(child.Children) > 0 {
			return fmt.Errorf("child category %s cannot have children", child.ID)
		}
	}
	return nil
}

// NewCategory creates a category with a fresh ID.
func NewCategory(name, icon string) *Category {
	return &Category{
		ID:   NewID(),
		Name: name,
		Icon: icon,
	}
}

// FindCategory locates a category by id anywhere in the tree.
// Returns nil if no category has the given id.
func FindCategory(tree []Category, id string) *Category {
	for i := range tree {
		if tree[i].ID == id {
			return &tree[i]
		}
		for j := range tree[i].Children {
			if tree[i].Children[j].ID == id {
				return &tree[i].Children[j]
			}
		}
	}
	return nil
}

// DefaultCategories returns a fresh copy of the category tree seeded on
// first run. Callers may mutate the result freely.
func DefaultCategories() []Category {
	return []Category{
		{ID: "tech-tools", Name: "Tech Tools", Icon: "🔧", Children: []Category{
			{ID: "dev-tools", Name: "Dev Tools", Icon: "💻", ParentID: "tech-tools"},
			{ID: "ai-tools", Name: "AI Tools", Icon: "🤖", ParentID: "tech-tools"},
		}},
		{ID: "learning", Name: "Learning", Icon: "📚", Children: []Category{
			{ID: "tutorials", Name: "Tutorials", Icon: "📖", ParentID: "learning"},
			{ID: "courses", Name: "Courses", Icon: "🎓", ParentID: "learning"},
		}},
		{ID: "news", Name: "News", Icon: "📰"},
		{ID: "entertainment", Name: "Entertainment", Icon: "🎮"},
		{ID: "business", Name: "Business", Icon: "💼"},
		{ID: "design", Name: "Design", Icon: "🎨"},
		{ID: "lifestyle", Name: "Lifestyle", Icon: "🏠"},
		{ID: DefaultCategoryID, Name: DefaultCategoryName, Icon: "📁"},
	}
}
