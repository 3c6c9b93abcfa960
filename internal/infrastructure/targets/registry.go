package targets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/directory"
)

var ErrRegistryNotFound = errors.New("targets file not found")

type targetEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	OrgName      string `yaml:"org_name"`
	VerifyTLS    *bool  `yaml:"verify_tls"`
	APITokenEnv  string `yaml:"api_token_env"`
	APISecretEnv string `yaml:"api_secret_env"`
}

type targetsFile struct {
	Targets []targetEntry `yaml:"targets"`
}

// Registry resolves target ids to Pritunl clients. Credentials are read from the
// environment variables each entry names, at first use.
type Registry struct {
	entries map[string]targetEntry
	timeout time.Duration
	lookup  func(string) (string, bool)

	mu      sync.Mutex
	clients map[string]domain.DirectoryClient
}

func LoadRegistry(path string, timeout time.Duration) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, path)
		}
		return nil, err
	}
	return ParseRegistry(raw, timeout)
}

func ParseRegistry(raw []byte, timeout time.Duration) (*Registry, error) {
	var file targetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}

	entries := make(map[string]targetEntry, len(file.Targets))
	for i, t := range file.Targets {
		t.ID = strings.TrimSpace(t.ID)
		t.BaseURL = strings.TrimSpace(t.BaseURL)
		switch {
		case t.ID == "":
			return nil, fmt.Errorf("target[%d]: empty id", i)
		case t.BaseURL == "":
			return nil, fmt.Errorf("target %q: empty base_url", t.ID)
		case t.APITokenEnv == "" || t.APISecretEnv == "":
			return nil, fmt.Errorf("target %q: api_token_env and api_secret_env are required", t.ID)
		}
		if _, dup := entries[t.ID]; dup {
			return nil, fmt.Errorf("target %q: duplicate id", t.ID)
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		entries[t.ID] = t
	}

	return &Registry{
		entries: entries,
		timeout: timeout,
		lookup:  os.LookupEnv,
		clients: map[string]domain.DirectoryClient{},
	}, nil
}

func (e targetEntry) target() domain.Target {
	verify := true
	if e.VerifyTLS != nil {
		verify = *e.VerifyTLS
	}
	return domain.Target{
		ID:        e.ID,
		Name:      e.Name,
		BaseURL:   e.BaseURL,
		OrgName:   strings.TrimSpace(e.OrgName),
		VerifyTLS: verify,
	}
}

func (r *Registry) Targets() []domain.Target {
	out := make([]domain.Target, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.target())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Directory(_ context.Context, targetID string) (domain.Target, domain.DirectoryClient, error) {
	entry, ok := r.entries[strings.TrimSpace(targetID)]
	if !ok {
		return domain.Target{}, nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, targetID)
	}
	target := entry.target()

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[target.ID]; ok {
		return target, client, nil
	}

	token, ok := r.lookup(entry.APITokenEnv)
	if !ok || token == "" {
		return domain.Target{}, nil, fmt.Errorf("target %q: %s is not set", target.ID, entry.APITokenEnv)
	}
	secret, ok := r.lookup(entry.APISecretEnv)
	if !ok || secret == "" {
		return domain.Target{}, nil, fmt.Errorf("target %q: %s is not set", target.ID, entry.APISecretEnv)
	}

	client := directory.NewPritunlClient(directory.PritunlConfig{
		BaseURL:   target.BaseURL,
		Token:     token,
		Secret:    secret,
		VerifyTLS: target.VerifyTLS,
		Timeout:   r.timeout,
	})
	r.clients[target.ID] = client
	return target, client, nil
}
