package core

import (
	"fmt"

	"funnelgram/entity"
)

// AuthenticateByToken resolves an API token to a user. The configured master
// key and repository-issued keys are both accepted; resolved keys are cached
// in memory.
func (c *Core) AuthenticateByToken(token string) (*entity.UserAuth, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}

	if c.authKey != "" && token == c.authKey {
		return &entity.UserAuth{Username: "admin", Token: token}, nil
	}

	if username, ok := c.keys[token]; ok {
		return &entity.UserAuth{Username: username, Token: token}, nil
	}

	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	username, err := c.repo.CheckApiKey(token)
	if err != nil {
		return nil, fmt.Errorf("unknown token: %w", err)
	}

	c.keys[token] = username
	return &entity.UserAuth{Username: username, Token: token}, nil
}

// GenerateApiKey issues or returns the API key of a username.
func (c *Core) GenerateApiKey(username string) (string, error) {
	if c.repo == nil {
		return "", fmt.Errorf("repository is not set")
	}

	apiKey, err := c.repo.GenerateApiKey(username)
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	c.keys[apiKey] = username
	return apiKey, nil
}
