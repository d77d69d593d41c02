package main

import (
	"context"
	"fmt"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/client"
	"github.com/sardine-ai/go-config-advisor/config"
	"github.com/sardine-ai/go-config-advisor/hardware"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// session is the policy source and advisor shared by one command run.
type session struct {
	repo    source.Repository
	advisor *advisor.Advisor
}

// newSession fetches the configured policy source once and builds an
// advisor from its policy. Without a source the default policy applies.
func newSession(ctx context.Context, c *config.Config) (*session, error) {
	repo, err := NewRepository(c)
	if err != nil {
		return nil, err
	}
	policy := advisor.DefaultPolicy()
	if repo != nil {
		if err := repo.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("loading policy source %s: %w", repo.GetName(), err)
		}
		policy, err = (&client.Client{Repository: repo}).Policy()
		if err != nil {
			return nil, err
		}
		logrus.WithField("source", repo.GetName()).Debug("policy loaded")
	}
	adv, err := advisor.New(policy)
	if err != nil {
		return nil, err
	}
	return &session{repo: repo, advisor: adv}, nil
}

// profile returns the named profile from the policy source.
func (s *session) profile(name string) (model.Profile, error) {
	if s.repo == nil {
		return model.Profile{}, fmt.Errorf("--profile-name %s needs a policy source (source_type)", name)
	}
	return (&client.Client{Repository: s.repo}).Profile(name)
}

// profileOptions are the profile flags shared by several commands.
type profileOptions struct {
	path          string
	name          string
	detect        bool
	containerized bool
	overrides     hardware.Overrides
}

func addProfileFlags(cmd *cobra.Command, o *profileOptions) {
	f := cmd.Flags()
	f.StringVar(&o.path, "profile", "", "Path to a YAML hardware profile")
	f.StringVar(&o.name, "profile-name", "", "Name of a profile served by the policy source")
	f.BoolVar(&o.detect, "detect", false, "Detect the profile from this host")
	f.StringVar(&o.overrides.Environment, "env", "", "Environment (development, staging, production)")
	f.IntVar(&o.overrides.CPUs, "cpus", 0, "Number of CPUs per instance")
	f.StringVar(&o.overrides.Memory, "memory", "", "Memory per instance, e.g. 8GiB")
	f.IntVar(&o.overrides.Instances, "instances", 0, "Number of application instances")
	f.BoolVar(&o.containerized, "containerized", false, "The application runs in a container")
	f.IntVar(&o.overrides.DBCPUs, "db-cpus", 0, "Database host CPUs (defaults to --cpus)")
	f.StringVar(&o.overrides.DBMemory, "db-memory", "", "Database host memory (defaults to --memory)")
	f.StringVar(&o.overrides.DBStorage, "db-storage", "", "Database storage type (ssd or hdd)")
}

// resolve picks the base profile (named, file, detected or default) and
// applies the flag overrides.
func (o *profileOptions) resolve(ctx context.Context, cmd *cobra.Command, s *session) (model.Profile, error) {
	var (
		p   model.Profile
		err error
	)
	switch {
	case o.name != "":
		p, err = s.profile(o.name)
	case o.path != "":
		p, err = hardware.LoadProfile(o.path)
	case o.detect:
		p, err = hardware.Detect(ctx)
	default:
		p = hardware.DefaultProfile()
	}
	if err != nil {
		return model.Profile{}, err
	}
	overrides := o.overrides
	if cmd != nil && cmd.Flags().Changed("containerized") {
		overrides.Containerized = &o.containerized
	}
	if err := overrides.Apply(&p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}
