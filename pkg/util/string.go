package util

import (
	"net/url"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// GenerateSlug creates a URL-friendly slug from title
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length without cutting a rune in half
	if runes := []rune(slug); len(runes) > 50 {
		slug = strings.Trim(string(runes[:50]), "-")
	}

	return slug
}

// ArticleURL builds the public address of a published article:
// {base}/{portal}/news-detail?newsId={id}&type=article[&lang={lang}].
func ArticleURL(baseURL, portal, articleID, lang string) string {
	path := "/" + strings.Trim(portal, "/") + "/news-detail"
	if portal == "" {
		path = "/news-detail"
	}

	// Not url.Values: Encode sorts keys and the parameter order is part of the address
	query := "newsId=" + url.QueryEscape(articleID) + "&type=article"
	if lang != "" {
		query += "&lang=" + url.QueryEscape(lang)
	}

	return strings.TrimRight(baseURL, "/") + path + "?" + query
}

// ParseList splits a comma separated value, dropping blanks, brackets and quotes.
func ParseList(value string) []string {
	if value == "" {
		return []string{}
	}

	value = strings.Trim(value, "[]")

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "\"'")
		if part != "" {
			items = append(items, part)
		}
	}

	return items
}

// Unique returns the non-blank values in first-seen order without repeats.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
