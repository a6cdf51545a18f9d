package model

// categoryColors maps the upstream feed's category taxonomy to display
// colors. This is a presentation contract consumed by the frontend; the
// keys and hex values are fixed and must not drift between releases.
var categoryColors = map[string]string{
	"academic":        "#3F51B5",
	"community":       "#8BC34A",
	"concerts":        "#E91E63",
	"conferences":     "#2196F3",
	"daylight-savings": "#607D8B",
	"disasters":       "#B71C1C",
	"expos":           "#00BCD4",
	"festivals":       "#FF9800",
	"health-warnings": "#F44336",
	"observances":     "#9C27B0",
	"performing-arts": "#673AB7",
	"politics":        "#795548",
	"public-holidays": "#4CAF50",
	"school-holidays": "#CDDC39",
	"severe-weather":  "#FF5722",
	"sports":          "#009688",
	"terror":          "#212121",
}

// DefaultCategoryColor is used for categories outside the known taxonomy.
const DefaultCategoryColor = "#9E9E9E"

// CategoryColor returns the display color for a category, falling back to
// DefaultCategoryColor for unknown categories.
func CategoryColor(category string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return DefaultCategoryColor
}

// KnownCategories returns the fixed category taxonomy (unsorted).
func KnownCategories() []string {
	out := make([]string, 0, len(categoryColors))
	for c := range categoryColors {
		out = append(out, c)
	}
	return out
}
