// Package ingress validates and decodes inbound CI webhook payloads
// before they become a Build.
package ingress

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	jobPattern    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	branchPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
)

var blockedHosts = map[string]bool{
	"localhost":        true,
	"127.0.0.1":        true,
	"0.0.0.0":          true,
	"::1":              true,
	"169.254.169.254": true,
}

var blockedCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// Payload is the validated, decoded ingress request body.
type Payload struct {
	Job         string `json:"job"`
	BuildNumber int    `json:"build_number"`
	Branch      string `json:"branch"`
	RepoURL     string `json:"repo_url"`
	CommitSHA   string `json:"commit_sha"`
	BuildLogs   string `json:"build_logs"`
}

const maxLogBytesDefault = 1 << 20

// Validate checks every field against spec.md §6's rules. It returns the
// first violation found; the caller maps any error to HTTP 400.
func Validate(p Payload, maxLogBytes int) error {
	if maxLogBytes <= 0 {
		maxLogBytes = maxLogBytesDefault
	}

	if p.Job == "" || len(p.Job) > 100 || !jobPattern.MatchString(p.Job) {
		return fmt.Errorf("job must be 1-100 chars matching [A-Za-z0-9._-]+")
	}
	if p.BuildNumber <= 0 {
		return fmt.Errorf("build_number must be a positive integer")
	}
	if p.Branch == "" || len(p.Branch) > 200 || !branchPattern.MatchString(p.Branch) {
		return fmt.Errorf("branch must be 1-200 chars matching [A-Za-z0-9._/-]+")
	}
	if strings.Contains(p.Branch, "..") || strings.HasPrefix(p.Branch, "/") || strings.HasSuffix(p.Branch, "/") {
		return fmt.Errorf("branch must not contain .. or have a leading/trailing /")
	}
	if err := validateRepoURL(p.RepoURL); err != nil {
		return err
	}
	if !commitPattern.MatchString(p.CommitSHA) {
		return fmt.Errorf("commit_sha must be 7-40 hex characters")
	}
	if len(p.BuildLogs) > maxLogBytes {
		return fmt.Errorf("build_logs exceeds max_log_bytes (%d)", maxLogBytes)
	}
	return nil
}

func validateRepoURL(raw string) error {
	if raw == "" || len(raw) > 500 {
		return fmt.Errorf("repo_url must be 1-500 chars")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("repo_url is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "https", "http", "git", "ssh":
	default:
		return fmt.Errorf("repo_url scheme must be one of https, http, git, ssh")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("repo_url must include a host")
	}
	if blockedHosts[strings.ToLower(host)] {
		return fmt.Errorf("repo_url host is blocked")
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, cidr := range blockedCIDRs {
			if cidr.Contains(ip) {
				return fmt.Errorf("repo_url host falls in a blocked private range")
			}
		}
	}
	return nil
}
