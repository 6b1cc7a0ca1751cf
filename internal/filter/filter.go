package filter

import (
	"strings"

	"sjsage522/dealalert/config"
	"sjsage522/dealalert/internal/crawler"
	"sjsage522/dealalert/logger"
)

// ShouldNotify applies the notification rules in order: a discount at or
// above the threshold always qualifies, otherwise any configured keyword
// found in the title does.
func ShouldNotify(p crawler.Product, cfg config.RuntimeConfig) bool {
	if p.DiscountPercent >= cfg.MinDiscountPercentage {
		if cfg.DebugMode {
			logger.ForComponent("filter").Debug().
				Str("title", p.Title).
				Int("discount", p.DiscountPercent).
				Int("threshold", cfg.MinDiscountPercentage).
				Msg("Accepted on discount")
		}
		return true
	}

	title := strings.ToLower(p.Title)
	for _, kw := range cfg.ProductKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) {
			if cfg.DebugMode {
				logger.ForComponent("filter").Debug().
					Str("title", p.Title).
					Str("keyword", kw).
					Msg("Accepted on keyword")
			}
			return true
		}
	}

	if cfg.DebugMode {
		logger.ForComponent("filter").Debug().
			Str("title", p.Title).
			Int("discount", p.DiscountPercent).
			Msg("Rejected")
	}
	return false
}

// Apply returns the products that pass ShouldNotify, in input order
func Apply(products []crawler.Product, cfg config.RuntimeConfig) []crawler.Product {
	out := make([]crawler.Product, 0, len(products))
	for _, p := range products {
		if ShouldNotify(p, cfg) {
			out = append(out, p)
		}
	}
	return out
}
