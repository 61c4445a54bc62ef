package faq

import "strings"

// Normalize lowercases, trims and collapses runs of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
