package usecase

import (
	"net/url"
	"strings"

	"museum-chatbot/internal/domain"
)

const (
	locationS3  = "S3"
	locationWeb = "WEB"
)

// CitationPolicy decides which retrieved references may leave the service
// and how internal storage references are exposed.
type CitationPolicy struct {
	// PublicPrefix is the object key prefix that marks a storage object as
	// public. Empty means no storage object is public.
	PublicPrefix string
	// Region is used to build the public HTTPS address of a storage object.
	Region string
}

// Apply keeps web references untouched, rewrites storage references under
// the public prefix to HTTPS, and drops everything else.
func (p CitationPolicy) Apply(refs []domain.Reference) []domain.Citation {
	out := make([]domain.Citation, 0, len(refs))
	for _, ref := range refs {
		c, ok := p.transform(ref)
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func (p CitationPolicy) transform(ref domain.Reference) (domain.Citation, bool) {
	switch strings.ToUpper(ref.LocationType) {
	case locationWeb:
		if strings.TrimSpace(ref.Location) == "" {
			return domain.Citation{}, false
		}
		return domain.Citation{Type: locationWeb, URL: ref.Location, Snippet: ref.Text, Metadata: ref.Metadata}, true
	case locationS3:
		bucket, key, ok := parseS3URI(ref.Location)
		if !ok || p.PublicPrefix == "" || !strings.HasPrefix(key, p.PublicPrefix) {
			return domain.Citation{}, false
		}
		return domain.Citation{Type: locationS3, URL: p.publicURL(bucket, key), Snippet: ref.Text, Metadata: ref.Metadata}, true
	default:
		return domain.Citation{}, false
	}
}

func (p CitationPolicy) publicURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	host := bucket + ".s3.amazonaws.com"
	if p.Region != "" {
		host = bucket + ".s3." + p.Region + ".amazonaws.com"
	}
	return "https://" + host + "/" + strings.Join(segments, "/")
}

// parseS3URI splits "s3://bucket/key". Anything else is malformed.
func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(uri), "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
