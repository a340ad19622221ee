// Package secrets resolves credentials by logical name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"mendan-go/internal/logger"
)

// ErrNotFound means the secret does not exist or has no usable value.
var ErrNotFound = errors.New("secret not found")

// Store returns the current value of a named secret.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret value.
	Value string
	// File points to a file holding the secret. It takes precedence over
	// Value.
	File string
}

// Load returns the trimmed secret from src. An error wrapping ErrNotFound is
// returned when neither File nor Value hold a usable secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		src.Value = string(data)
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		if file != "" {
			return "", fmt.Errorf("%s file %q is empty: %w", name, file, ErrNotFound)
		}
		return "", fmt.Errorf("%s is not configured: %w", name, ErrNotFound)
	}
	return secret, nil
}

// EnvStore reads secret "webhook-url" from SECRET_WEBHOOK_URL, or from the
// file named by SECRET_WEBHOOK_URL_FILE.
type EnvStore struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// EnvKey returns the environment variable holding name.
func EnvKey(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return "SECRET_" + strings.ToUpper(r.Replace(name))
}

func (e EnvStore) Get(_ context.Context, name string) (string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := EnvKey(name)
	value, _ := lookup(key)
	file, _ := lookup(key + "_FILE")
	return Load(Source{Name: name, Value: value, File: file})
}

// SecretManager reads the latest version of secrets in one GCP project.
// The client is created on first use and reused.
type SecretManager struct {
	project string
	opts    []option.ClientOption
	log     *logrus.Entry

	mu     sync.Mutex
	client *secretmanager.Client
}

func NewSecretManager(project string, log *logrus.Entry, opts ...option.ClientOption) *SecretManager {
	return &SecretManager{
		project: project,
		opts:    opts,
		log:     logger.OrDiscard(log).WithField("component", "secrets"),
	}
}

func (s *SecretManager) getClient(ctx context.Context) (*secretmanager.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	c, err := secretmanager.NewClient(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("secret manager client: %w", err)
	}
	s.client = c
	return c, nil
}

// VersionName returns the resource name of the latest version of name.
func (s *SecretManager) VersionName(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name)
}

func (s *SecretManager) Get(ctx context.Context, name string) (string, error) {
	c, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	resp, err := c.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.VersionName(name),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		s.log.WithError(err).WithField("secret", name).Error("failed to get secret")
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return Load(Source{Name: name, Value: string(resp.GetPayload().GetData())})
}

func (s *SecretManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// KeyFunc adapts a Store lookup of one fixed name to the func shape the
// extraction backends take.
func KeyFunc(store Store, name string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return store.Get(ctx, name)
	}
}
