package generation

import (
	"context"
	"errors"
	"regexp"
)

const (
	KindText  = "text"
	KindImage = "image"
)

// ErrBlocked means the provider refused the request as invalid or unsafe.
// That outcome is terminal; retrying the same prompt cannot succeed.
var ErrBlocked = errors.New("generation request rejected by provider")

type Request struct {
	Kind       string
	Prompt     string
	ProjectRef string
}

type Result struct {
	Content   string
	ImageURLs []string
}

// Provider is the external content-generation service.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

var imageURLPattern = regexp.MustCompile(`https?://[^\s"')]+\.(?:png|jpe?g|gif|webp|mp4|mov)`)

// extractAssetURLs pulls externally hosted media references out of generated
// content so the asset pipeline can re-host them.
func extractAssetURLs(content string) []string {
	matches := imageURLPattern.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var urls []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}
