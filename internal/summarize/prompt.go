package summarize

import (
	"fmt"
	"strings"
)

// ContentType selects content-specific prompt instructions.
type ContentType string

// Content types.
const (
	ContentRSS     ContentType = "RSS"
	ContentSocial  ContentType = "SOCIAL"
	ContentArticle ContentType = "ARTICLE"
	ContentGeneric ContentType = "GENERIC"
)

const basePrompt = `You are a concise content summarizer. Your task is to extract the most important information and present it clearly.

Guidelines:
- Be concise and direct
- Focus on key facts, events, and insights
- Avoid filler words and redundant phrases
- Use bullet points for multiple items
- Maintain factual accuracy
- Do not add opinions or interpretations`

var instructions = map[ContentType]string{
	ContentRSS: `This is RSS feed content containing multiple news items or articles.
Focus on:
- Main headlines and their significance
- Key developments or announcements
- Trends across multiple items if present`,
	ContentSocial: `This is social media content (Reddit, Hacker News, etc.).
Focus on:
- Main topic of discussion
- Top-voted or most engaged comments
- Community sentiment and consensus
- Notable disagreements or debates`,
	ContentArticle: `This is long-form article content.
Focus on:
- Main thesis or argument
- Key supporting points
- Important data or statistics
- Conclusions or recommendations`,
	ContentGeneric: `This is general web content.
Focus on:
- Primary topic or purpose
- Key information and facts
- Actionable insights if any`,
}

// BuildPrompt renders the full prompt for content.
func BuildPrompt(content string, contentType ContentType, maxLength int) string {
	text, ok := instructions[contentType]
	if !ok {
		text = instructions[ContentGeneric]
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxSummaryLength
	}
	return fmt.Sprintf("%s\n\n%s\n\nMaximum summary length: %d characters.\n\nContent to summarize:\n---\n%s\n---\n\nProvide a concise summary:",
		basePrompt, text, maxLength, content)
}

// ContentTypeForStrategy maps a scraper strategy name to a content type.
func ContentTypeForStrategy(strategy string) ContentType {
	switch strings.ToUpper(strategy) {
	case "RSS":
		return ContentRSS
	case "REDDIT", "HACKERNEWS":
		return ContentSocial
	case "HTML":
		return ContentArticle
	default:
		return ContentGeneric
	}
}
