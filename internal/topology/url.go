package topology

import "strings"

// isRelativeURL reports whether url is a relative submodule URL, prefixed
// with "./" or "../".
func isRelativeURL(url string) bool {
	return strings.HasPrefix(url, "./") || strings.HasPrefix(url, "../")
}

// resolveRelativeURL resolves a relative submodule URL against its parent's
// own remote URL, following the conventional three-URL-family rules: SSH
// scp-like (user@host:path), HTTP(S), and local filesystem paths.
//
// Grounded on original_source/topology.py's _resolve_relative_url.
func resolveRelativeURL(parentURL, relative string) string {
	if !isRelativeURL(relative) {
		return relative
	}

	switch {
	case strings.HasPrefix(parentURL, "http://"), strings.HasPrefix(parentURL, "https://"):
		return joinURLPath(parentURL, relative)
	case strings.Contains(parentURL, "@") && strings.Contains(parentURL, ":") && !strings.Contains(parentURL, "://"):
		// scp-like SSH syntax: user@host:path/to/repo. No implicit strip of
		// the trailing path segment here: unlike the HTTP(S) and
		// local-path families, the reference resolver treats the full
		// path literally and only climbs on an explicit "../" token.
		at := strings.Index(parentURL, ":")
		host := parentURL[:at]
		path := parentURL[at+1:]
		return host + ":" + joinPath(path, relative, false)
	default:
		// Local filesystem path: parentURL names the repo's own working
		// copy, so resolution starts from its containing directory.
		return joinPath(parentURL, relative, true)
	}
}

func joinURLPath(base, relative string) string {
	scheme, rest, _ := strings.Cut(base, "://")
	idx := strings.Index(rest, "/")
	var host, path string
	if idx < 0 {
		host, path = rest, "/"
	} else {
		host, path = rest[:idx], rest[idx:]
	}
	// parentURL names the remote repository itself, not a directory, so
	// resolution always starts one level up from it before any explicit
	// "../"/"./" token is applied.
	return scheme + "://" + host + "/" + joinPath(strings.TrimPrefix(path, "/"), relative, true)
}

func joinPath(base, relative string, implicitStrip bool) string {
	// "../" climbs one directory per occurrence; "./" resolves against the
	// same directory base lives in.
	dir := base
	if strings.HasSuffix(dir, "/") {
		dir = strings.TrimSuffix(dir, "/")
	}
	if implicitStrip {
		dir = parentOf(dir)
	}

	rel := relative
	for strings.HasPrefix(rel, "../") {
		rel = strings.TrimPrefix(rel, "../")
		dir = parentOf(dir)
	}
	rel = strings.TrimPrefix(rel, "./")

	if dir == "" {
		return rel
	}
	return dir + "/" + rel
}

func parentOf(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
