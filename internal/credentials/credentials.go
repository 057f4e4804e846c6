// Package credentials resolves transport credentials for remote URLs.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/oauth2"

	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

type Type string

const (
	TypeNone    Type = "none"
	TypeToken   Type = "token"
	TypeBasic   Type = "basic-auth"
	TypeSSHKey  Type = "ssh-key"
	TypeKeyring Type = "keyring"
)

// tokenUsername is sent with personal access tokens; GitHub and GitLab
// ignore it.
const tokenUsername = "token"

// DefaultKeyringService is the keyring service used when none is configured.
const DefaultKeyringService = "gitdeps"

type Config struct {
	Type           Type
	Username       string
	Password       string
	Token          string
	SSHKey         []byte
	SSHKeyPath     string
	SSHKeyPassword string
	KeyringService string
}

// New builds the provider described by cfg. TypeNone (or an empty type)
// returns a nil provider.
func New(cfg Config) (backend.CredentialProvider, error) {
	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeToken:
		if cfg.Token == "" {
			return nil, errors.New("token is required for token authentication")
		}
		return Static(&githttp.BasicAuth{Username: tokenUsername, Password: cfg.Token}), nil
	case TypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, errors.New("username and password are required for basic authentication")
		}
		return Static(&githttp.BasicAuth{Username: cfg.Username, Password: cfg.Password}), nil
	case TypeSSHKey:
		key := cfg.SSHKey
		if len(key) == 0 && cfg.SSHKeyPath != "" {
			var err error
			if key, err = os.ReadFile(cfg.SSHKeyPath); err != nil {
				return nil, fmt.Errorf("read ssh key: %w", err)
			}
		}
		auth, err := SSHKey(cfg.Username, key, cfg.SSHKeyPassword)
		if err != nil {
			return nil, err
		}
		return Static(auth), nil
	case TypeKeyring:
		return NewKeyring(cfg.KeyringService), nil
	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", cfg.Type)
	}
}

// SSHKey parses a PEM private key, encrypted when passphrase is set.
func SSHKey(user string, key []byte, passphrase string) (*gitssh.PublicKeys, error) {
	if len(key) == 0 {
		return nil, errors.New("ssh key is required for ssh authentication")
	}
	var (
		signer ssh.Signer
		err    error
	)
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	if user == "" {
		user = "git"
	}
	return &gitssh.PublicKeys{User: user, Signer: signer}, nil
}

// StaticProvider hands out the same AuthMethod for every URL whose transport
// accepts it.
type StaticProvider struct {
	auth transport.AuthMethod
	kind backend.CredentialType
}

func Static(auth transport.AuthMethod) *StaticProvider {
	kind := backend.CredentialUserPass
	if _, ok := auth.(*gitssh.PublicKeys); ok {
		kind = backend.CredentialSSHKey
	}
	return &StaticProvider{auth: auth, kind: kind}
}

func (s *StaticProvider) Credentials(_, _ string, allowed backend.CredentialType) (transport.AuthMethod, error) {
	if !allowed.Has(s.kind) {
		return nil, nil
	}
	return s.auth, nil
}

// TokenSourceProvider exchanges an oauth2 token for basic auth on every
// request, so refreshed tokens are picked up.
type TokenSourceProvider struct {
	src oauth2.TokenSource
}

func NewTokenSource(src oauth2.TokenSource) *TokenSourceProvider {
	return &TokenSourceProvider{src: oauth2.ReuseTokenSource(nil, src)}
}

func (p *TokenSourceProvider) Credentials(_, usernameHint string, allowed backend.CredentialType) (transport.AuthMethod, error) {
	if !allowed.Has(backend.CredentialUserPass) {
		return nil, nil
	}
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	user := usernameHint
	if user == "" {
		user = tokenUsername
	}
	return &githttp.BasicAuth{Username: user, Password: tok.AccessToken}, nil
}

// KeyringProvider looks tokens up in the OS keyring, keyed by remote host.
type KeyringProvider struct {
	service string
}

func NewKeyring(service string) *KeyringProvider {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringProvider{service: service}
}

func (k *KeyringProvider) Credentials(rawURL, usernameHint string, allowed backend.CredentialType) (transport.AuthMethod, error) {
	if !allowed.Has(backend.CredentialUserPass) {
		return nil, nil
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, err
	}
	secret, err := keyring.Get(k.service, host)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring lookup for %s: %w", host, err)
	}
	user := usernameHint
	if user == "" {
		user = tokenUsername
	}
	return &githttp.BasicAuth{Username: user, Password: secret}, nil
}

// Store saves a token for host.
func (k *KeyringProvider) Store(host, token string) error {
	if host == "" || token == "" {
		return errors.New("host and token are required")
	}
	return keyring.Set(k.service, host, token)
}

// Forget deletes the token of host. Deleting a missing entry is not an error.
func (k *KeyringProvider) Forget(host string) error {
	if err := keyring.Delete(k.service, host); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func hostOf(rawURL string) (string, error) {
	ep, err := transport.NewEndpoint(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if ep.Host == "" {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			return u.Hostname(), nil
		}
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return ep.Host, nil
}

// Chain asks each provider in turn and returns the first credentials found.
type Chain []backend.CredentialProvider

func (c Chain) Credentials(rawURL, usernameHint string, allowed backend.CredentialType) (transport.AuthMethod, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		auth, err := p.Credentials(rawURL, usernameHint, allowed)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if auth != nil {
			return auth, nil
		}
	}
	return nil, errors.Join(errs...)
}
