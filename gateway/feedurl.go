package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// DeriveFeedURL maps page URLs of platforms with well-known feed endpoints
// to the feed URL the backend fetcher should poll: YouTube channels,
// subreddits and GitHub repositories. Anything else is returned unchanged on
// the assumption that it already points at a feed.
func DeriveFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "youtube.com":
		if len(parts) >= 2 && parts[0] == "channel" {
			return fmt.Sprintf("https://www.youtube.com/feeds/videos.xml?channel_id=%s", parts[1]), nil
		}
	case "reddit.com", "old.reddit.com":
		if len(parts) >= 2 && parts[0] == "r" {
			return fmt.Sprintf("https://www.reddit.com/r/%s/.rss", parts[1]), nil
		}
	case "github.com":
		if len(parts) >= 2 {
			return fmt.Sprintf("https://github.com/%s/%s/releases.atom", parts[0], parts[1]), nil
		}
	}

	return raw, nil
}
