package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/MrEthical07/authcore"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var ErrUserInfo = errors.New("oauth userinfo request failed")

// ProviderConfig holds client credentials for one provider.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Provider is an authorization-code provider with an OIDC userinfo endpoint.
type Provider struct {
	Name        string
	config      *oauth2.Config
	userInfoURL string
}

// Google returns a provider for Google sign-in.
func Google(cfg ProviderConfig) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return NewProvider("google", cfg, google.Endpoint, googleUserInfoURL, scopes...)
}

// NewProvider describes any OIDC-style provider.
func NewProvider(name string, cfg ProviderConfig, endpoint oauth2.Endpoint, userInfoURL string, scopes ...string) *Provider {
	if len(scopes) == 0 {
		scopes = cfg.Scopes
	}
	return &Provider{
		Name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
	}
}

// boolish accepts true, "true" and their false forms; some providers send
// email_verified as a string.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	switch strings.Trim(strings.ToLower(string(data)), `"`) {
	case "true":
		*b = true
	default:
		*b = false
	}
	return nil
}

type userInfo struct {
	Subject             string  `json:"sub"`
	Email               string  `json:"email"`
	EmailVerified       boolish `json:"email_verified"`
	PhoneNumber         string  `json:"phone_number"`
	PhoneNumberVerified boolish `json:"phone_number_verified"`
	Name                string  `json:"name"`
	Picture             string  `json:"picture"`
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (userInfo, error) {
	client := p.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return userInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return userInfo{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	if resp.StatusCode != http.StatusOK {
		return userInfo{}, fmt.Errorf("%w: status %d", ErrUserInfo, resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return userInfo{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	if info.Subject == "" {
		return userInfo{}, fmt.Errorf("%w: missing sub", ErrUserInfo)
	}
	return info, nil
}

func (p *Provider) identity(info userInfo) authcore.FederatedIdentity {
	id := authcore.FederatedIdentity{
		Identifier:  authcore.FederatedIdentifier(p.Name, info.Subject),
		DisplayName: info.Name,
		PictureURL:  info.Picture,
	}
	if info.Email != "" && bool(info.EmailVerified) {
		id.VerifiedEmails = []string{info.Email}
	}
	if info.PhoneNumber != "" && bool(info.PhoneNumberVerified) {
		id.VerifiedPhoneNumbers = []string{info.PhoneNumber}
	}
	return id
}
