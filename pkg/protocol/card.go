package protocol

import "fmt"

// AgentCard describes the agent behind this server: identity, endpoints,
// capabilities, skills, and security requirements.
type AgentCard struct {
	ProtocolVersion      string                    `json:"protocolVersion"`
	Name                 string                    `json:"name"`
	Description          string                    `json:"description,omitempty"`
	URL                  string                    `json:"url"`
	PreferredTransport   string                    `json:"preferredTransport,omitempty"`
	Version              string                    `json:"version"`
	DocumentationURL     string                    `json:"documentationUrl,omitempty"`
	Capabilities         AgentCapabilities         `json:"capabilities"`
	DefaultInputModes    []string                  `json:"defaultInputModes,omitempty"`
	DefaultOutputModes   []string                  `json:"defaultOutputModes,omitempty"`
	Skills               []AgentSkill              `json:"skills,omitempty"`
	SecuritySchemes      map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Security             []map[string][]string     `json:"security,omitempty"`
	SupportsExtendedCard bool                      `json:"supportsAuthenticatedExtendedCard,omitempty"`
}

// AgentCapabilities flags optional protocol features.
type AgentCapabilities struct {
	Streaming         bool             `json:"streaming,omitempty"`
	PushNotifications bool             `json:"pushNotifications,omitempty"`
	Extensions        []AgentExtension `json:"extensions,omitempty"`
}

// AgentExtension declares a protocol extension the agent understands.
type AgentExtension struct {
	URI         string         `json:"uri"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// AgentSkill is one advertised capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// SecurityScheme is a field-presence union: exactly one flavor is set.
type SecurityScheme struct {
	APIKey        *APIKeySecurityScheme        `json:"apiKey,omitempty"`
	HTTPAuth      *HTTPAuthSecurityScheme      `json:"httpAuth,omitempty"`
	OAuth2        *OAuth2SecurityScheme        `json:"oauth2,omitempty"`
	OpenIDConnect *OpenIDConnectSecurityScheme `json:"openIdConnect,omitempty"`
	MutualTLS     *MutualTLSSecurityScheme     `json:"mutualTls,omitempty"`
}

// Validate checks the exactly-one rule.
func (s *SecurityScheme) Validate() error {
	n := 0
	for _, set := range []bool{
		s.APIKey != nil, s.HTTPAuth != nil, s.OAuth2 != nil,
		s.OpenIDConnect != nil, s.MutualTLS != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("security scheme must contain exactly one flavor")
	}
	return nil
}

type APIKeySecurityScheme struct {
	Description string `json:"description,omitempty"`
	// In is one of "query", "header", "cookie".
	In   string `json:"in"`
	Name string `json:"name"`
}

type HTTPAuthSecurityScheme struct {
	Description  string `json:"description,omitempty"`
	Scheme       string `json:"scheme"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

type OAuth2SecurityScheme struct {
	Description string     `json:"description,omitempty"`
	Flows       OAuthFlows `json:"flows"`
}

type OpenIDConnectSecurityScheme struct {
	Description      string `json:"description,omitempty"`
	OpenIDConnectURL string `json:"openIdConnectUrl"`
}

type MutualTLSSecurityScheme struct {
	Description string `json:"description,omitempty"`
}

// OAuthFlows holds at least one configured OAuth2 flow.
type OAuthFlows struct {
	AuthorizationCode *AuthorizationCodeFlow `json:"authorizationCode,omitempty"`
	ClientCredentials *ClientCredentialsFlow `json:"clientCredentials,omitempty"`
	Implicit          *ImplicitFlow          `json:"implicit,omitempty"`
	Password          *PasswordFlow          `json:"password,omitempty"`
}

type AuthorizationCodeFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	TokenURL         string            `json:"tokenUrl"`
	RefreshURL       string            `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

type ClientCredentialsFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL string            `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}

type ImplicitFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	RefreshURL       string            `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

type PasswordFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL string            `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}
