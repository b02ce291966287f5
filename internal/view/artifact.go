package view

import (
	"net/url"
	"strings"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// ResolveArtifactURL joins a server-relative artifact path to the service
// base URL. ok is false when the path is absent or blank, so a task without
// a result never yields a made-up location. Paths that are already absolute
// URLs are returned unchanged.
func ResolveArtifactURL(relative *string, base string) (string, bool) {
	if relative == nil {
		return "", false
	}
	rel := strings.TrimSpace(*relative)
	if rel == "" {
		return "", false
	}
	if u, err := url.Parse(rel); err == nil && u.IsAbs() && u.Host != "" {
		return rel, true
	}

	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return rel, true
	}
	return base + "/" + strings.TrimLeft(rel, "/"), true
}

// ArtifactKind names what an artifact contains.
type ArtifactKind string

// Artifact kinds, in the order Artifacts lists them
const (
	ArtifactArchive  ArtifactKind = "archive"
	ArtifactMarkdown ArtifactKind = "markdown"
	ArtifactRawJSON  ArtifactKind = "raw_json"
	ArtifactImage    ArtifactKind = "image"
)

// Artifact is one downloadable output of a succeeded task.
type Artifact struct {
	Kind ArtifactKind
	URL  string
}

// Artifacts resolves every artifact location of r against base: the archive,
// the markdown and raw JSON documents, then page images in server order.
// Absent locations are skipped. A nil result has no artifacts.
func Artifacts(r *task.Result, base string) []Artifact {
	if r == nil {
		return nil
	}

	var out []Artifact
	add := func(kind ArtifactKind, rel *string) {
		if u, ok := ResolveArtifactURL(rel, base); ok {
			out = append(out, Artifact{Kind: kind, URL: u})
		}
	}

	add(ArtifactArchive, r.ArchiveURL)
	add(ArtifactMarkdown, r.MarkdownURL)
	add(ArtifactRawJSON, r.RawJSONURL)
	for i := range r.ImageURLs {
		add(ArtifactImage, &r.ImageURLs[i])
	}
	return out
}
