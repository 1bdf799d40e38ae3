package review

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Ref identifies a pull request on a code host.
type Ref struct {
	Repo   string // owner/name
	Number int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Number)
}

// ParseRef accepts "owner/name#42" or a pull request URL such as
// "https://github.com/owner/name/pull/42".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty review reference")
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return parseURL(s)
	}

	repo, num, ok := strings.Cut(s, "#")
	if !ok {
		return Ref{}, fmt.Errorf("review reference %q: expected owner/name#number", s)
	}
	return build(s, repo, num)
}

func parseURL(s string) (Ref, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("review reference %q: %w", s, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return Ref{}, fmt.Errorf("review reference %q: not a pull request URL", s)
	}
	return build(s, parts[0]+"/"+parts[1], parts[3])
}

func build(raw, repo, num string) (Ref, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("review reference %q: invalid repository %q", raw, repo)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Ref{}, fmt.Errorf("review reference %q: invalid number %q", raw, num)
	}
	return Ref{Repo: repo, Number: n}, nil
}
