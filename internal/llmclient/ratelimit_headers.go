package llmclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nevindra/codexcore"
)

// ParseRateLimitHeaders derives a RateLimitSnapshot from the
// x-codex-primary-*, x-codex-secondary-*, and x-codex-credits-* response
// headers, exactly as named in the provider's client source.
func ParseRateLimitHeaders(h http.Header) codexcore.RateLimitSnapshot {
	return codexcore.RateLimitSnapshot{
		Primary:   parseWindow(h, "x-codex-primary"),
		Secondary: parseWindow(h, "x-codex-secondary"),
		Credits:   parseCredits(h),
	}
}

func parseWindow(h http.Header, prefix string) *codexcore.Window {
	used := h.Get(prefix + "-used-percent")
	if used == "" {
		return nil
	}
	pct, err := strconv.ParseFloat(used, 64)
	if err != nil {
		return nil
	}
	w := &codexcore.Window{UsedPercent: pct}
	if mins := h.Get(prefix + "-window-minutes"); mins != "" {
		if n, err := strconv.Atoi(mins); err == nil {
			w.WindowMinutes = &n
		}
	}
	if resets := h.Get(prefix + "-reset-at"); resets != "" {
		if t, err := time.Parse(time.RFC3339, resets); err == nil {
			w.ResetsAt = &t
		}
	}
	return w
}

func parseCredits(h http.Header) codexcore.Credits {
	c := codexcore.Credits{
		HasCredits: h.Get("x-codex-credits-has-credits") == "true",
		Unlimited:  h.Get("x-codex-credits-unlimited") == "true",
	}
	if bal := h.Get("x-codex-credits-balance"); bal != "" {
		if v, err := strconv.ParseFloat(bal, 64); err == nil {
			c.Balance = &v
		}
	}
	return c
}
