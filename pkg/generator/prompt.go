package generator

import (
	"fmt"
	"strings"
)

// Tones accepted by the generator. An omitted or unrecognized tone falls
// back to professional.
const (
	ToneProfessional  = "professional"
	ToneInspirational = "inspirational"
	ToneHumorous      = "humorous"
	ToneEducational   = "educational"
)

var toneInstructions = map[string]string{
	ToneProfessional:  "Use a professional, authoritative tone. Focus on insights, data, and expertise.",
	ToneInspirational: "Use an inspiring, motivational tone. Include personal stories and uplifting messages.",
	ToneHumorous:      "Use a light, witty tone with clever observations. Keep it professional but entertaining.",
	ToneEducational:   "Use an informative, teaching tone. Break down concepts and provide actionable tips.",
}

// normalizeTone maps arbitrary input to a known tone.
func normalizeTone(tone string) string {
	t := strings.ToLower(strings.TrimSpace(tone))
	if _, ok := toneInstructions[t]; !ok {
		return ToneProfessional
	}
	return t
}

const systemPromptFormat = `You are an expert LinkedIn content strategist. Create ONE engaging, viral LinkedIn post based on the given topic.

TONE: %s
%s

Your post should:
1. Include relevant emojis (but not overuse them)
2. Include 3-5 trending hashtags
3. Be optimized for LinkedIn's algorithm
4. Be between 1200-2500 characters for optimal engagement
5. Include a hook that grabs attention in the first 2 lines
6. Use line breaks effectively for readability

Also generate an AI image prompt that would create a professional visual to accompany the post.

IMPORTANT: Return your response as a valid JSON object with this exact structure:
{
  "post": {
    "content": "The full LinkedIn post text with emojis and hashtags",
    "imagePrompt": "A detailed prompt for AI image generation that matches the post theme"
  }
}`

// systemPrompt embeds the tone-specific writing guidance.
func systemPrompt(tone string) string {
	return fmt.Sprintf(systemPromptFormat, strings.ToUpper(tone), toneInstructions[tone])
}

// userPrompt carries the literal topic string.
func userPrompt(tone, topic string) string {
	return fmt.Sprintf(`Generate a %s LinkedIn post about: "%s"`, tone, topic)
}
