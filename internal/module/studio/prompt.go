package studio

import (
	"fmt"
	"strings"
)

// typeSuffixes are the fixed prompt clauses appended per generation type.
// Unknown types leave the prompt untouched.
var typeSuffixes = map[GenType]string{
	GenTypeBackground: ". Produce a clean, empty scene with no jewelry in frame, suitable as a product photography backdrop. Soft diffused lighting, high resolution.",
	GenTypeStudio:     ". Render as professional studio product photography: centered composition, seamless backdrop, softbox lighting, crisp macro focus on the jewelry.",
	GenTypeModel:      ". Render as a photorealistic lifestyle shot of a model wearing the jewelry, natural skin tones, shallow depth of field, editorial quality.",
}

// ApplyTypeSuffix appends the fixed clause for the generation type.
func ApplyTypeSuffix(prompt string, genType GenType) string {
	suffix, ok := typeSuffixes[genType]
	if !ok {
		return prompt
	}
	return prompt + suffix
}

// backgroundPrompts are the five curated backdrop variants requested for
// every run. Count and independence matter; the wording is curation.
var backgroundPrompts = [backgroundCount]string{
	"A luxurious dark velvet surface with gentle folds and a single warm spotlight",
	"A polished white marble slab with subtle grey veining under bright daylight",
	"A weathered light oak tabletop beside a linen cloth, morning window light",
	"A matte black stone pedestal against a smoky graphite gradient",
	"A soft champagne silk drape with delicate highlights and deep shadow falloff",
}

// BackgroundPrompts returns the curated background prompts in launch order.
func BackgroundPrompts() []string {
	return backgroundPrompts[:]
}

// studioPrompt is the fixed prompt for the per-image studio view.
const studioPrompt = "Recreate this jewelry piece as a flawless e-commerce studio shot, true to its materials and gemstones"

// StudioPrompt returns the fixed studio-view prompt.
func StudioPrompt() string {
	return studioPrompt
}

// categoryPrompts are the fixed per-category model-shot templates.
var categoryPrompts = map[Category]string{
	CategoryEar:   "Show this jewelry worn on a model's ear, close-up profile portrait, hair swept back to keep the piece fully visible",
	CategoryNeck:  "Show this jewelry worn around a model's neck, collarbone framing, elegant neckline, piece resting naturally",
	CategoryWrist: "Show this jewelry worn on a model's wrist, hand posed gracefully, sleeve pulled back, piece as the focal point",
}

// CategoryPrompt returns the fixed model-shot template for a category.
func CategoryPrompt(cat Category) string {
	return categoryPrompts[cat]
}

// ExportText serializes a finished aggregate into the descriptive text block
// consumed by listing tools.
func ExportText(agg Aggregate) string {
	var b strings.Builder

	b.WriteString("Jewelry asset kit\n")
	b.WriteString("=================\n\n")

	b.WriteString(fmt.Sprintf("Background assets (%d):\n", len(agg.BackgroundAssets)))
	for i, url := range agg.BackgroundAssets {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, url))
	}

	for i, obj := range agg.ObjectResults {
		b.WriteString(fmt.Sprintf("\nItem %d:\n", i+1))
		if obj.StudioView != "" {
			b.WriteString(fmt.Sprintf("  Studio view: %s\n", obj.StudioView))
		} else {
			b.WriteString("  Studio view: (not generated)\n")
		}
		for _, group := range obj.ModelShots {
			b.WriteString(fmt.Sprintf("  Model shots (%s):\n", group.Category))
			for j, url := range group.Images {
				b.WriteString(fmt.Sprintf("    %d. %s\n", j+1, url))
			}
		}
	}

	return b.String()
}
