package predicthq

import "strings"

// feedBoilerplate is attribution text the feed appends to descriptions.
const feedBoilerplate = "Sourced from predicthq.com"

func cleanTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return "Untitled Event"
}

func cleanCategory(category string) string {
	if c := strings.TrimSpace(category); c != "" {
		return c
	}
	return "other"
}

func stripBoilerplate(description string) string {
	return strings.TrimSpace(strings.ReplaceAll(description, feedBoilerplate, ""))
}
