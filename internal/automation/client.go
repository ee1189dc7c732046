// Package automation is the adapter for the workflow automation platform's
// GraphQL API. Operations run either with the process-wide master token or
// with a per-user delegated token obtained through the authorize mutation.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/machinebox/graphql"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/pkg/logger"
)

type RemoteUser struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ExternalUserID string `json:"externalUserId"`
}

type Authentication struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Solution struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type SolutionInstance struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type ViewerDetails struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Client issues GraphQL operations against the automation platform. The
// master token is set once at construction and read-only afterwards.
type Client struct {
	gql         *graphql.Client
	masterToken string
	timeout     time.Duration
	logger      *slog.Logger
}

func NewClient(cfg internal.AutomationConfig, lg *slog.Logger) *Client {
	if lg == nil {
		lg = logger.L()
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	return &Client{
		gql:         graphql.NewClient(cfg.GraphQLURL, graphql.WithHTTPClient(httpClient)),
		masterToken: cfg.MasterToken,
		timeout:     cfg.RequestTimeout,
		logger:      lg,
	}
}

func (c *Client) run(ctx context.Context, token, document string, vars map[string]interface{}, out interface{}) error {
	req := graphql.NewRequest(document)
	for k, v := range vars {
		req.Var(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	ctx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.gql.Run(ctx, req, out)
}

// IssueDelegatedToken exchanges a remote user id for a short-lived bearer
// token scoped to that user. Master-token operation.
func (c *Client) IssueDelegatedToken(ctx context.Context, remoteID string) (string, error) {
	const document = `
		mutation ($userId: ID!) {
			authorize(input: {userId: $userId}) {
				accessToken
			}
		}`

	var resp struct {
		Authorize struct {
			AccessToken string `json:"accessToken"`
		} `json:"authorize"`
	}
	if err := c.run(ctx, c.masterToken, document, map[string]interface{}{"userId": remoteID}, &resp); err != nil {
		return "", fmt.Errorf("authorize user %s: %w", remoteID, err)
	}
	if resp.Authorize.AccessToken == "" {
		return "", fmt.Errorf("authorize user %s: empty access token in response", remoteID)
	}

	c.logger.Debug("issued delegated token",
		"remote_id", remoteID,
		"token_prefix", logger.TokenPrefix(resp.Authorize.AccessToken))
	return resp.Authorize.AccessToken, nil
}

// IssueAuthorizationCode requests a fresh single-use code for embedding the
// platform UI in a popup. Codes are never cached or reused.
func (c *Client) IssueAuthorizationCode(ctx context.Context, remoteID string) (string, error) {
	const document = `
		mutation ($userId: ID!) {
			generateAuthorizationCode(input: {userId: $userId}) {
				authorizationCode
			}
		}`

	var resp struct {
		GenerateAuthorizationCode struct {
			AuthorizationCode string `json:"authorizationCode"`
		} `json:"generateAuthorizationCode"`
	}
	if err := c.run(ctx, c.masterToken, document, map[string]interface{}{"userId": remoteID}, &resp); err != nil {
		return "", fmt.Errorf("generate authorization code for user %s: %w", remoteID, err)
	}
	if resp.GenerateAuthorizationCode.AuthorizationCode == "" {
		return "", fmt.Errorf("generate authorization code for user %s: empty code in response", remoteID)
	}
	return resp.GenerateAuthorizationCode.AuthorizationCode, nil
}

// CreateRemoteUser provisions a platform account bound to our external user
// id and returns the platform's id for it.
func (c *Client) CreateRemoteUser(ctx context.Context, externalUserID, name string) (string, error) {
	const document = `
		mutation ($externalUserId: String!, $name: String!) {
			createExternalUser(input: {externalUserId: $externalUserId, name: $name}) {
				userId
			}
		}`

	var resp struct {
		CreateExternalUser struct {
			UserID string `json:"userId"`
		} `json:"createExternalUser"`
	}
	vars := map[string]interface{}{"externalUserId": externalUserID, "name": name}
	if err := c.run(ctx, c.masterToken, document, vars, &resp); err != nil {
		return "", fmt.Errorf("create external user %s: %w", externalUserID, err)
	}
	if resp.CreateExternalUser.UserID == "" {
		return "", fmt.Errorf("create external user %s: empty user id in response", externalUserID)
	}
	return resp.CreateExternalUser.UserID, nil
}

func (c *Client) DeleteRemoteUser(ctx context.Context, remoteID string) error {
	const document = `
		mutation ($userId: ID!) {
			removeExternalUser(input: {userId: $userId}) {
				clientMutationId
			}
		}`

	var resp struct {
		RemoveExternalUser struct {
			ClientMutationID string `json:"clientMutationId"`
		} `json:"removeExternalUser"`
	}
	if err := c.run(ctx, c.masterToken, document, map[string]interface{}{"userId": remoteID}, &resp); err != nil {
		return fmt.Errorf("remove external user %s: %w", remoteID, err)
	}
	return nil
}

// ListRemoteUsers pages through the platform's user set with the master
// token and returns it in full.
func (c *Client) ListRemoteUsers(ctx context.Context) ([]RemoteUser, error) {
	const document = `
		query ($after: String) {
			users(first: 100, after: $after) {
				edges {
					node {
						id
						name
						externalUserId
					}
					cursor
				}
				pageInfo {
					hasNextPage
					endCursor
				}
			}
		}`

	var users []RemoteUser
	var cursor *string

	for {
		var resp struct {
			Users struct {
				Edges []struct {
					Node RemoteUser `json:"node"`
				} `json:"edges"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"users"`
		}

		vars := map[string]interface{}{}
		if cursor != nil {
			vars["after"] = *cursor
		}
		if err := c.run(ctx, c.masterToken, document, vars, &resp); err != nil {
			return nil, fmt.Errorf("list remote users: %w", err)
		}

		for _, edge := range resp.Users.Edges {
			users = append(users, edge.Node)
		}
		if !resp.Users.PageInfo.HasNextPage {
			break
		}
		end := resp.Users.PageInfo.EndCursor
		cursor = &end
	}

	return users, nil
}

// ViewerDetails returns the profile behind a delegated token.
func (c *Client) ViewerDetails(ctx context.Context, delegatedToken string) (*ViewerDetails, error) {
	const document = `
		query {
			viewer {
				details {
					username
					email
				}
			}
		}`

	var resp struct {
		Viewer struct {
			Details ViewerDetails `json:"details"`
		} `json:"viewer"`
	}
	if err := c.run(ctx, delegatedToken, document, nil, &resp); err != nil {
		return nil, fmt.Errorf("viewer details: %w", err)
	}
	return &resp.Viewer.Details, nil
}

func (c *Client) ListAuthentications(ctx context.Context, delegatedToken string) ([]Authentication, error) {
	const document = `
		query {
			viewer {
				authentications {
					edges {
						node {
							id
							name
						}
					}
				}
			}
		}`

	var resp struct {
		Viewer struct {
			Authentications struct {
				Edges []struct {
					Node Authentication `json:"node"`
				} `json:"edges"`
			} `json:"authentications"`
		} `json:"viewer"`
	}
	if err := c.run(ctx, delegatedToken, document, nil, &resp); err != nil {
		return nil, fmt.Errorf("list authentications: %w", err)
	}

	auths := make([]Authentication, 0, len(resp.Viewer.Authentications.Edges))
	for _, edge := range resp.Viewer.Authentications.Edges {
		auths = append(auths, edge.Node)
	}
	return auths, nil
}

func (c *Client) DeleteAuthentication(ctx context.Context, delegatedToken, authID string) error {
	const document = `
		mutation ($authenticationId: ID!) {
			removeAuthentication(input: {authenticationId: $authenticationId}) {
				clientMutationId
			}
		}`

	var resp struct {
		RemoveAuthentication struct {
			ClientMutationID string `json:"clientMutationId"`
		} `json:"removeAuthentication"`
	}
	vars := map[string]interface{}{"authenticationId": authID}
	if err := c.run(ctx, delegatedToken, document, vars, &resp); err != nil {
		return fmt.Errorf("remove authentication %s: %w", authID, err)
	}
	return nil
}

// ListSolutions is a master-token query: the solution catalog belongs to
// the partner account, not to individual users.
func (c *Client) ListSolutions(ctx context.Context) ([]Solution, error) {
	const document = `
		query {
			viewer {
				solutions {
					edges {
						node {
							id
							title
						}
					}
				}
			}
		}`

	var resp struct {
		Viewer struct {
			Solutions struct {
				Edges []struct {
					Node Solution `json:"node"`
				} `json:"edges"`
			} `json:"solutions"`
		} `json:"viewer"`
	}
	if err := c.run(ctx, c.masterToken, document, nil, &resp); err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}

	solutions := make([]Solution, 0, len(resp.Viewer.Solutions.Edges))
	for _, edge := range resp.Viewer.Solutions.Edges {
		solutions = append(solutions, edge.Node)
	}
	return solutions, nil
}

func (c *Client) ListSolutionInstances(ctx context.Context, delegatedToken string) ([]SolutionInstance, error) {
	const document = `
		query {
			viewer {
				solutionInstances {
					edges {
						node {
							id
							name
							enabled
						}
					}
				}
			}
		}`

	var resp struct {
		Viewer struct {
			SolutionInstances struct {
				Edges []struct {
					Node SolutionInstance `json:"node"`
				} `json:"edges"`
			} `json:"solutionInstances"`
		} `json:"viewer"`
	}
	if err := c.run(ctx, delegatedToken, document, nil, &resp); err != nil {
		return nil, fmt.Errorf("list solution instances: %w", err)
	}

	instances := make([]SolutionInstance, 0, len(resp.Viewer.SolutionInstances.Edges))
	for _, edge := range resp.Viewer.SolutionInstances.Edges {
		instances = append(instances, edge.Node)
	}
	return instances, nil
}

func (c *Client) CreateSolutionInstance(ctx context.Context, delegatedToken, solutionID, name string) (string, error) {
	const document = `
		mutation ($solutionId: ID!, $instanceName: String!) {
			createSolutionInstance(input: {solutionId: $solutionId, instanceName: $instanceName, authValues: [], configValues: []}) {
				solutionInstance {
					id
				}
			}
		}`

	var resp struct {
		CreateSolutionInstance struct {
			SolutionInstance struct {
				ID string `json:"id"`
			} `json:"solutionInstance"`
		} `json:"createSolutionInstance"`
	}
	vars := map[string]interface{}{"solutionId": solutionID, "instanceName": name}
	if err := c.run(ctx, delegatedToken, document, vars, &resp); err != nil {
		return "", fmt.Errorf("create solution instance: %w", err)
	}
	if resp.CreateSolutionInstance.SolutionInstance.ID == "" {
		return "", fmt.Errorf("create solution instance: empty instance id in response")
	}
	return resp.CreateSolutionInstance.SolutionInstance.ID, nil
}

func (c *Client) UpdateSolutionInstance(ctx context.Context, delegatedToken, instanceID string, enabled bool) error {
	const document = `
		mutation ($solutionInstanceId: ID!, $enabled: Boolean!) {
			updateSolutionInstance(input: {solutionInstanceId: $solutionInstanceId, enabled: $enabled}) {
				clientMutationId
			}
		}`

	var resp struct {
		UpdateSolutionInstance struct {
			ClientMutationID string `json:"clientMutationId"`
		} `json:"updateSolutionInstance"`
	}
	vars := map[string]interface{}{"solutionInstanceId": instanceID, "enabled": enabled}
	if err := c.run(ctx, delegatedToken, document, vars, &resp); err != nil {
		return fmt.Errorf("update solution instance %s: %w", instanceID, err)
	}
	return nil
}

func (c *Client) DeleteSolutionInstance(ctx context.Context, delegatedToken, instanceID string) error {
	const document = `
		mutation ($solutionInstanceId: ID!) {
			removeSolutionInstance(input: {solutionInstanceId: $solutionInstanceId}) {
				clientMutationId
			}
		}`

	var resp struct {
		RemoveSolutionInstance struct {
			ClientMutationID string `json:"clientMutationId"`
		} `json:"removeSolutionInstance"`
	}
	vars := map[string]interface{}{"solutionInstanceId": instanceID}
	if err := c.run(ctx, delegatedToken, document, vars, &resp); err != nil {
		return fmt.Errorf("remove solution instance %s: %w", instanceID, err)
	}
	return nil
}
