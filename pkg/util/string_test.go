package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Quarterly Results 2024", "quarterly-results-2024"},
		{"  Hello, World!  ", "hello-world"},
		{"Café des Arts", "café-des-arts"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlug(tt.title))
		})
	}
}

func TestArticleURL(t *testing.T) {
	assert.Equal(t,
		"https://intranet.example.com/portal/intranet/news-detail?newsId=42&type=article",
		ArticleURL("https://intranet.example.com/", "portal/intranet", "42", ""))
	assert.Equal(t,
		"https://intranet.example.com/portal/intranet/news-detail?newsId=42&type=article&lang=fr",
		ArticleURL("https://intranet.example.com", "/portal/intranet/", "42", "fr"))
	assert.Equal(t, "/news-detail?newsId=a+b&type=article", ArticleURL("", "", "a b", ""))
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"/sales", "/hr"}, ParseList(`["/sales", '/hr', ]`))
	assert.Equal(t, []string{}, ParseList(""))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"intranet", "board"}, Unique([]string{"intranet", " board", "", "intranet", "board "}))
	assert.Equal(t, []string{}, Unique(nil))
}
