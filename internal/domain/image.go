package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// OfficialNamespace is the Docker Hub namespace of official images.
	OfficialNamespace = "library"

	// DefaultTag is used when a reference does not name a tag.
	DefaultTag = "latest"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*$`)
	tagPattern           = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
)

// ImageRef is a parsed Docker Hub image reference.
type ImageRef struct {
	Namespace string
	Name      string
	Tag       string
}

// ParseImageRef parses references of the form name, namespace/name, and
// either with a :tag suffix. Registry hosts and digests are rejected because
// images are resolved against Docker Hub only.
func ParseImageRef(s string) (ImageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImageRef{}, fmt.Errorf("%w: empty reference", ErrInvalidImage)
	}
	if strings.Contains(s, "@") {
		return ImageRef{}, fmt.Errorf("%w: digests are not supported", ErrInvalidImage)
	}

	ref := ImageRef{Tag: DefaultTag}
	path := s
	if i := strings.LastIndex(s, ":"); i > strings.LastIndex(s, "/") {
		path, ref.Tag = s[:i], s[i+1:]
		if !tagPattern.MatchString(ref.Tag) {
			return ImageRef{}, fmt.Errorf("%w: bad tag %q", ErrInvalidImage, ref.Tag)
		}
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		ref.Namespace, ref.Name = OfficialNamespace, parts[0]
	case 2:
		ref.Namespace, ref.Name = parts[0], parts[1]
	default:
		return ImageRef{}, fmt.Errorf("%w: registry hosts are not supported", ErrInvalidImage)
	}

	for _, part := range []string{ref.Namespace, ref.Name} {
		if !pathComponentPattern.MatchString(part) {
			return ImageRef{}, fmt.Errorf("%w: bad path component %q", ErrInvalidImage, part)
		}
	}

	return ref, nil
}

// Repository returns the repository path the registry search reports,
// without the implicit library namespace.
func (r ImageRef) Repository() string {
	if r.Namespace == OfficialNamespace {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// String returns the normalized repository:tag reference.
func (r ImageRef) String() string {
	return r.Repository() + ":" + r.Tag
}

// ImageCandidate is one registry search result.
type ImageCandidate struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Official    bool   `json:"official"`
}

// NewImageCandidate derives the owner namespace from a repository name.
func NewImageCandidate(name, description string, stars int, official bool) ImageCandidate {
	owner := OfficialNamespace
	if ns, _, ok := strings.Cut(name, "/"); ok {
		owner = ns
	}
	return ImageCandidate{
		Name:        name,
		Owner:       owner,
		Description: description,
		Stars:       stars,
		Official:    official,
	}
}

// Matches reports whether the candidate is the repository ref points at.
func (c ImageCandidate) Matches(ref ImageRef) bool {
	name := strings.TrimPrefix(c.Name, OfficialNamespace+"/")
	return name == ref.Repository()
}
