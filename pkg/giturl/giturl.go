// Package giturl parses pull-request and issue URLs for the hosted git
// platform families prsentry understands.
package giturl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/prsentry/prsentry/pkg/errs"
)

// Provider identifies a hosted git platform family.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
	ProviderAzure     Provider = "azure"
	ProviderGitea     Provider = "gitea"
)

// Parsed is the decomposition of a PR/MR or issue URL.
type Parsed struct {
	Provider Provider
	Owner    string
	Repo     string
	Number   int
	IsIssue  bool
}

// Parse decodes a PR/MR or issue URL. The PR number is always >= 1 on
// success.
func Parse(raw string) (Parsed, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Parsed{}, errs.Wrap(errs.KindConfig, "unrecognized URL format", err)
	}

	host := strings.ToLower(u.Hostname())
	segments := splitPath(u.Path)

	switch {
	case strings.Contains(host, "github"):
		return parseGitHub(segments)
	case strings.Contains(host, "gitlab"):
		return parseGitLab(segments)
	case strings.Contains(host, "bitbucket"):
		return parseBitbucket(segments)
	case strings.Contains(host, "dev.azure") || strings.Contains(host, "visualstudio"):
		return parseAzure(segments)
	case strings.Contains(host, "gitea") || strings.Contains(host, "codeberg"):
		return parseGitea(segments)
	default:
		// Self-hosted instances with arbitrary hostnames fall through to the
		// generic /{owner}/{repo}/{pulls|issues}/{n} decoder.
		return parseGeneric(segments)
	}
}

// splitPath breaks a URL path into non-empty segments, stripping the api/v3
// and api/v1 prefixes self-hosted deployments expose.
func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) >= 2 && segments[0] == "api" && (segments[1] == "v3" || segments[1] == "v1") {
		segments = segments[2:]
	}
	return segments
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.Newf(errs.KindConfig, "cannot parse PR number %q", s)
	}
	if n < 1 {
		return 0, errs.Newf(errs.KindConfig, "cannot parse PR number %q", s)
	}
	return n, nil
}

// parseGitHub handles github.com/{owner}/{repo}/{pull|issues}/{n}.
func parseGitHub(segments []string) (Parsed, error) {
	if len(segments) < 4 {
		return Parsed{}, errs.New(errs.KindConfig, "too few path components in URL")
	}
	kind := segments[2]
	if kind != "pull" && kind != "pulls" && kind != "issues" {
		return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
	}
	n, err := parseNumber(segments[3])
	if err != nil {
		return Parsed{}, err
	}
	return Parsed{
		Provider: ProviderGitHub,
		Owner:    segments[0],
		Repo:     segments[1],
		Number:   n,
		IsIssue:  kind == "issues",
	}, nil
}

// parseGitLab handles gitlab.com/{group...}/{project}/-/merge_requests/{n}
// with arbitrarily nested groups.
func parseGitLab(segments []string) (Parsed, error) {
	for i, s := range segments {
		if s != "-" || i+2 >= len(segments) {
			continue
		}
		kind := segments[i+1]
		if kind != "merge_requests" && kind != "issues" {
			continue
		}
		if i < 2 {
			return Parsed{}, errs.New(errs.KindConfig, "too few path components in URL")
		}
		n, err := parseNumber(segments[i+2])
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{
			Provider: ProviderGitLab,
			Owner:    strings.Join(segments[:i-1], "/"),
			Repo:     segments[i-1],
			Number:   n,
			IsIssue:  kind == "issues",
		}, nil
	}
	return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
}

// parseBitbucket handles bitbucket.org/{owner}/{repo}/pull-requests/{n}.
func parseBitbucket(segments []string) (Parsed, error) {
	if len(segments) < 4 {
		return Parsed{}, errs.New(errs.KindConfig, "too few path components in URL")
	}
	kind := segments[2]
	if kind != "pull-requests" && kind != "issues" {
		return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
	}
	n, err := parseNumber(segments[3])
	if err != nil {
		return Parsed{}, err
	}
	return Parsed{
		Provider: ProviderBitbucket,
		Owner:    segments[0],
		Repo:     segments[1],
		Number:   n,
		IsIssue:  kind == "issues",
	}, nil
}

// parseAzure handles dev.azure.com/{org}/{project}/_git/{repo}/pullrequest/{n}.
func parseAzure(segments []string) (Parsed, error) {
	for i, s := range segments {
		if s != "_git" || i+3 >= len(segments) {
			continue
		}
		if segments[i+2] != "pullrequest" {
			return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
		}
		n, err := parseNumber(segments[i+3])
		if err != nil {
			return Parsed{}, err
		}
		owner := ""
		if i > 0 {
			owner = segments[0]
		}
		return Parsed{
			Provider: ProviderAzure,
			Owner:    owner,
			Repo:     segments[i+1],
			Number:   n,
		}, nil
	}
	return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
}

// parseGitea handles {host}/{owner}/{repo}/pulls/{n}.
func parseGitea(segments []string) (Parsed, error) {
	p, err := parseGeneric(segments)
	if err != nil {
		return Parsed{}, err
	}
	p.Provider = ProviderGitea
	return p, nil
}

// parseGeneric handles /{owner}/{repo}/{pulls|pull|issues}/{n}.
func parseGeneric(segments []string) (Parsed, error) {
	if len(segments) < 4 {
		return Parsed{}, errs.New(errs.KindConfig, "too few path components in URL")
	}
	kind := segments[2]
	if kind != "pulls" && kind != "pull" && kind != "issues" {
		return Parsed{}, errs.New(errs.KindConfig, "unrecognized URL format")
	}
	n, err := parseNumber(segments[3])
	if err != nil {
		return Parsed{}, err
	}
	return Parsed{
		Provider: ProviderGitHub,
		Owner:    segments[0],
		Repo:     segments[1],
		Number:   n,
		IsIssue:  kind == "issues",
	}, nil
}
