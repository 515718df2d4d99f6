package api

import (
	"net/url"
	"strings"

	"scribe/internal/services"
)

// ValidateVideoURL checks that raw is a well-formed YouTube video url. Only
// YouTube sources are accepted; anything else fails with ErrValidation before
// a job is enqueued.
func ValidateVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return services.Wrap(services.ErrValidation, "api", "validate url", "url required", nil)
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return services.Wrap(services.ErrValidation, "api", "validate url", "url must be http or https", err)
	}

	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if parsed.Path == "/watch" && parsed.Query().Get("v") != "" {
			return nil
		}
		for _, prefix := range []string{"/shorts/", "/live/", "/embed/"} {
			if strings.HasPrefix(parsed.Path, prefix) && len(parsed.Path) > len(prefix) {
				return nil
			}
		}
		return services.Wrap(services.ErrValidation, "api", "validate url", "url does not reference a video", nil)
	case "youtu.be":
		if len(strings.Trim(parsed.Path, "/")) > 0 {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "validate url", "short url missing video id", nil)
	default:
		return services.Wrap(services.ErrValidation, "api", "validate url", "only youtube urls are supported", nil)
	}
}
