package session

import (
	"net/url"
	"strings"
)

// rootURL strips everything from the first "/api" on, so
// http://host:5500/api/v1 becomes http://host:5500.
func rootURL(restURL string) string {
	root, _, _ := strings.Cut(restURL, "/api")
	return strings.TrimSuffix(root, "/")
}

func wsRootURL(restURL string) string {
	root := rootURL(restURL)
	if rest, ok := strings.CutPrefix(root, "http"); ok {
		return "ws" + rest // https -> wss falls out of the same cut
	}
	return root
}

func healthCandidates(restURL string) []string {
	root := rootURL(restURL)
	return dedupe([]string{
		restURL + "/health",
		restURL + "/status",
		root + "/health",
		root + "/status",
		root,
	})
}

func registrationCandidates(restURL string) []string {
	root := rootURL(restURL)
	return dedupe([]string{
		restURL + "/players/register",
		restURL + "/player/register",
		restURL + "/register",
		root + "/api/players/register",
	})
}

func socketCandidates(restURL, wsURL, playerID string) []string {
	id := url.QueryEscape(playerID)
	wsRoot := wsRootURL(restURL)
	return dedupe([]string{
		withQuery(wsURL, "id", id),
		strings.TrimSuffix(wsURL, "/") + "/" + url.PathEscape(playerID),
		wsURL,
		wsRoot + "/game?id=" + id,
		wsRoot + "/ws?id=" + id,
		wsRoot + "/socket?id=" + id,
	})
}

func withQuery(base, key, escaped string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + escaped
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
