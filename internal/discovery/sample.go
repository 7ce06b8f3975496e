package discovery

import (
	"time"

	"trendpipe/internal/docstore"
)

// SampleTrends returns a curated trend set used when the search API is
// unavailable, so downstream stages always have input to work with.
func SampleTrends() []docstore.Trend {
	now := time.Now().UTC().Format(time.RFC3339)
	return []docstore.Trend{
		{
			Title:     "Warm minimalism",
			Content:   "Minimalist compositions with warm earth tones, soft beige gradients, and generous negative space. Popular for living room and office wall art.",
			FetchedAt: now,
		},
		{
			Title:     "Retro futurism",
			Content:   "1980s-inspired chrome lettering, sunset gradients, and grid horizons. Strong demand in poster and album-art style prints.",
			FetchedAt: now,
		},
		{
			Title:     "Botanical line art",
			Content:   "Single-line drawings of plants and flowers on off-white backgrounds. Consistently strong seller in the home decor category.",
			FetchedAt: now,
		},
		{
			Title:     "Dreamy collage",
			Content:   "Surreal mixed-media collages combining vintage photography with painted textures and celestial elements.",
			FetchedAt: now,
		},
		{
			Title:     "Bold abstract geometry",
			Content:   "High-contrast geometric shapes in saturated primary colors, influenced by Bauhaus and Memphis design revivals.",
			FetchedAt: now,
		},
	}
}
