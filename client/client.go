package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/metrics"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// PolicyKey is the top-level document key holding the advisor.Policy.
	PolicyKey = "policy"
	// ProfilesKey is the top-level document key holding named profiles.
	ProfilesKey = "profiles"
)

var ErrConfigNotFound = errors.New("config not found")

// Client keeps a Repository fresh in the background and decodes values out
// of it.
type Client struct {
	Repository      source.Repository
	RefreshInterval time.Duration
	cancel          context.CancelFunc
	done            chan struct{}
}

// NewClient refreshes repository once and, when that succeeds, starts a
// goroutine that refreshes it every refreshInterval until Close is called
// or ctx is cancelled.
func NewClient(ctx context.Context, repository source.Repository, refreshInterval time.Duration) (*Client, error) {
	if refreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", refreshInterval)
	}
	if err := refreshOnce(ctx, repository); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		Repository:      repository,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go func() {
		defer close(client.done)
		refresh(ctx, client)
	}()
	return client, nil
}

func refreshOnce(ctx context.Context, repository source.Repository) error {
	err := repository.Refresh(ctx)
	metrics.RecordRefresh(repository.GetName(), err == nil)
	if err != nil {
		logrus.WithError(err).WithField("repository", repository.GetName()).Error("error refreshing repository")
	}
	return err
}

// refresh blocks until ctx is done.
func refresh(ctx context.Context, client *Client) {
	ticker := time.NewTicker(client.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = refreshOnce(ctx, client.Repository)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the background refresh and waits for it to exit.
func (c *Client) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// GetConfig decodes the top-level value name into data, which must be a
// non-nil pointer.
func (c *Client) GetConfig(name string, data interface{}) error {
	config, ok := c.Repository.GetData(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	marshal, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(marshal, data)
}

func (c *Client) GetConfigArrayOfStrings(name string) ([]string, error) {
	config, ok := c.Repository.GetData(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	items, ok := config.([]interface{})
	if !ok {
		return nil, fmt.Errorf("config %s is not an array of strings", name)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("config %s is not an array of strings", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) GetConfigString(name string) (string, error) {
	config, ok := c.Repository.GetData(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	configString, ok := config.(string)
	if !ok {
		return "", fmt.Errorf("config %s is not a string", name)
	}
	return configString, nil
}

func (c *Client) GetConfigInt(name string) (int, error) {
	config, ok := c.Repository.GetData(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	configInt, ok := config.(int)
	if !ok {
		return 0, fmt.Errorf("config %s is not an int", name)
	}
	return configInt, nil
}

func (c *Client) GetConfigFloat(name string) (float64, error) {
	config, ok := c.Repository.GetData(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	switch v := config.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("config %s is not a float", name)
}

// Policy decodes the policy section. A document without one yields the
// default policy.
func (c *Client) Policy() (advisor.Policy, error) {
	policy := advisor.DefaultPolicy()
	err := c.GetConfig(PolicyKey, &policy)
	if errors.Is(err, ErrConfigNotFound) {
		return advisor.DefaultPolicy(), nil
	}
	if err != nil {
		return advisor.Policy{}, fmt.Errorf("decoding policy: %w", err)
	}
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return advisor.Policy{}, err
	}
	return policy, nil
}

// Profile returns the named profile from the profiles section, normalized.
func (c *Client) Profile(name string) (model.Profile, error) {
	var profiles map[string]model.Profile
	if err := c.GetConfig(ProfilesKey, &profiles); err != nil {
		return model.Profile{}, err
	}
	profile, ok := profiles[name]
	if !ok {
		return model.Profile{}, fmt.Errorf("%w: profile %s", ErrConfigNotFound, name)
	}
	profile.Name = name
	profile.Normalize()
	return profile, nil
}

// ProfileNames lists the profiles the document defines.
func (c *Client) ProfileNames() []string {
	var profiles map[string]yaml.Node
	if err := c.GetConfig(ProfilesKey, &profiles); err != nil {
		return nil
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
