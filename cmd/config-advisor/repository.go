package main

import (
	"fmt"
	"net/url"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sardine-ai/go-config-advisor/config"
	"github.com/sardine-ai/go-config-advisor/source"
)

// NewRepository builds the policy source selected by source_type. It
// returns nil when no source is configured.
func NewRepository(c *config.Config) (source.Repository, error) {
	name := c.SourceName
	switch c.SourceType {
	case config.SourceTypeNone:
		return nil, nil
	case config.SourceTypeFS:
		return &source.FileRepository{Name: name, Path: c.SourcePath}, nil
	case config.SourceTypeHTTP:
		u, err := url.Parse(c.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("invalid source_url: %w", err)
		}
		return &source.WebRepository{Name: name, URL: u, APIKey: c.SourceAPIKey}, nil
	case config.SourceTypeGit:
		u, err := url.Parse(c.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("invalid source_url: %w", err)
		}
		repo := &source.GitRepository{Name: name, URL: u, Path: c.SourcePath, Branch: c.SourceBranch}
		if c.SourceAPIKey != "" {
			repo.Auth = &http.BasicAuth{Username: "x-access-token", Password: c.SourceAPIKey}
		}
		return repo, nil
	case config.SourceTypeS3:
		return &source.AwsS3Repository{Name: name, BucketName: c.SourceBucket, ObjectName: c.SourceObject}, nil
	case config.SourceTypeGCS:
		return &source.GcpStorageRepository{Name: name, BucketName: c.SourceBucket, ObjectName: c.SourceObject}, nil
	}
	return nil, fmt.Errorf("unknown source_type %q", c.SourceType)
}
