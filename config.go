package session

var _ Config = &ConfigObject{}

// ConfigObject is the plain-struct Config implementation.
type ConfigObject struct {
	BaseURL     string `json:"base_url,omitempty"`
	ChannelURL  string `json:"channel_url,omitempty"`
	SignInRoute string `json:"sign_in_route,omitempty"`
}

func (c *ConfigObject) GetBaseURL() string {
	return c.BaseURL
}

func (c *ConfigObject) GetChannelURL() string {
	return c.ChannelURL
}

func (c *ConfigObject) GetSignInRoute() string {
	if c.SignInRoute == "" {
		return "/sign-in"
	}
	return c.SignInRoute
}
