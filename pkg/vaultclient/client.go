package vaultclient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/crypto"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// ClientConfig holds the configuration for the vault client
type ClientConfig struct {
	// BaseURL of the vault server, e.g. http://localhost:8000
	BaseURL string

	// Domain every message signed by this client is bound to
	Domain types.VaultDomain

	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to a vault server and signs messages for its domain
type Client struct {
	baseURL    string
	domain     types.VaultDomain
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new vault client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Domain.VaultAddress == (common.Address{}) {
		return nil, fmt.Errorf("vault address is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		domain:     config.Domain,
		httpClient: &http.Client{Timeout: timeout},
		logger:     config.Logger,
	}, nil
}

// Domain returns the domain the client signs for
func (c *Client) Domain() types.VaultDomain {
	return c.domain
}

// ResponseError is a non-2xx answer from the server. It unwraps to the
// registered VaultError when the server reported one, so callers can use
// errors.Is(err, types.ErrSignatureUsed).
type ResponseError struct {
	StatusCode int
	Response   types.ErrorResponse

	vaultErr *types.VaultError
}

func (e *ResponseError) Error() string {
	name := e.Response.Name
	if name == "" {
		name = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("vault server returned status %d (%s): %s", e.StatusCode, name, e.Response.Error)
}

func (e *ResponseError) Unwrap() error {
	if e.vaultErr == nil {
		return nil
	}
	return e.vaultErr
}

func newResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{StatusCode: status}
	if err := json.Unmarshal(body, &re.Response); err != nil {
		re.Response.Error = string(body)
		return re
	}
	if ve, ok := types.VaultErrorByCode(re.Response.Code); ok {
		re.vaultErr = ve
	}
	return re
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Sugar().Debugw("Vault request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"requestId", resp.Header.Get("X-Request-ID"),
	)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return newResponseError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SignAdminAction produces an owner proof for an owner-gated call
func (c *Client) SignAdminAction(ownerKey *ecdsa.PrivateKey, action types.AdminAction) (*types.AdminProof, error) {
	auth, err := crypto.SignAuthorization(crypto.AdminActionMessage(c.domain, &action), ownerKey)
	if err != nil {
		return nil, err
	}
	return &types.AdminProof{Action: action, Authorization: *auth}, nil
}

func (c *Client) SignDeposit(key *ecdsa.PrivateKey, p *types.DepositParam) (*types.Authorization, error) {
	return crypto.SignAuthorization(crypto.DepositMessage(c.domain, p), key)
}

func (c *Client) SignWithdrawal(key *ecdsa.PrivateKey, p *types.WithdrawalParam) (*types.Authorization, error) {
	return crypto.SignAuthorization(crypto.WithdrawalMessage(c.domain, p), key)
}

func (c *Client) SignClaim(key *ecdsa.PrivateKey, p *types.ClaimParam) (*types.Authorization, error) {
	return crypto.SignAuthorization(crypto.ClaimMessage(c.domain, p), key)
}

// Initialize registers the first owner of an uninitialized vault
func (c *Client) Initialize(ctx context.Context, owner common.Address) (*types.AuthorityResponse, error) {
	var out types.AuthorityResponse
	if err := c.do(ctx, http.MethodPost, "/vault/initialize", &types.InitializeRequestV1{Owner: owner}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfigureSigner adds or removes a signer with a proof from the owner
func (c *Client) ConfigureSigner(ctx context.Context, signer common.Address, add bool, proof *types.AdminProof) (*types.AuthorityResponse, error) {
	if proof == nil {
		return nil, fmt.Errorf("owner proof is required")
	}
	var out types.AuthorityResponse
	req := &types.ConfigureSignerRequestV1{Signer: signer, Add: add, Proof: *proof}
	if err := c.do(ctx, http.MethodPost, "/vault/signers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSigner signs and submits an add-signer action in one step
func (c *Client) AddSigner(ctx context.Context, ownerKey *ecdsa.PrivateKey, signer common.Address, nonce uint64, expiration time.Time) (*types.AuthorityResponse, error) {
	proof, err := c.SignAdminAction(ownerKey, types.AdminAction{
		Action: types.AdminActionAddSigner, Target: signer, Nonce: nonce, ExpirationTime: expiration.Unix(),
	})
	if err != nil {
		return nil, err
	}
	return c.ConfigureSigner(ctx, signer, true, proof)
}

// RemoveSigner signs and submits a remove-signer action in one step
func (c *Client) RemoveSigner(ctx context.Context, ownerKey *ecdsa.PrivateKey, signer common.Address, nonce uint64, expiration time.Time) (*types.AuthorityResponse, error) {
	proof, err := c.SignAdminAction(ownerKey, types.AdminAction{
		Action: types.AdminActionRemoveSigner, Target: signer, Nonce: nonce, ExpirationTime: expiration.Unix(),
	})
	if err != nil {
		return nil, err
	}
	return c.ConfigureSigner(ctx, signer, false, proof)
}

// TransferOwnership hands the vault to newOwner
func (c *Client) TransferOwnership(ctx context.Context, ownerKey *ecdsa.PrivateKey, newOwner common.Address, nonce uint64, expiration time.Time) (*types.AuthorityResponse, error) {
	proof, err := c.SignAdminAction(ownerKey, types.AdminAction{
		Action: types.AdminActionTransferOwnership, Target: newOwner, Nonce: nonce, ExpirationTime: expiration.Unix(),
	})
	if err != nil {
		return nil, err
	}
	var out types.AuthorityResponse
	req := &types.TransferOwnershipRequestV1{NewOwner: newOwner, Proof: *proof}
	if err := c.do(ctx, http.MethodPost, "/vault/ownership", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit pulls funds from the depositor's account into custody. cosig is
// the authorization of a registered signer over the same param.
func (c *Client) Deposit(ctx context.Context, depositorKey *ecdsa.PrivateKey, p types.DepositParam, cosig types.Authorization) (*types.OperationResponse, error) {
	depSig, err := c.SignDeposit(depositorKey, &p)
	if err != nil {
		return nil, err
	}
	var out types.OperationResponse
	req := &types.DepositRequestV1{Param: p, Authorization: cosig, DepositorAuthorization: *depSig}
	if err := c.do(ctx, http.MethodPost, "/vault/deposit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Withdraw(ctx context.Context, p types.WithdrawalParam, auth types.Authorization) (*types.OperationResponse, error) {
	var out types.OperationResponse
	if err := c.do(ctx, http.MethodPost, "/vault/withdraw", &types.WithdrawRequestV1{Param: p, Authorization: auth}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Claim(ctx context.Context, p types.ClaimParam, auth types.Authorization) (*types.OperationResponse, error) {
	var out types.OperationResponse
	if err := c.do(ctx, http.MethodPost, "/vault/claim", &types.ClaimRequestV1{Param: p, Authorization: auth}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAuthority(ctx context.Context) (*types.AuthorityResponse, error) {
	var out types.AuthorityResponse
	if err := c.do(ctx, http.MethodGet, "/vault/authority", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProjectVaults(ctx context.Context) ([]*types.ProjectVault, error) {
	var out types.ProjectVaultsResponse
	if err := c.do(ctx, http.MethodGet, "/vault/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.ProjectVaults, nil
}

// GetProjectVault returns nil, nil when the project has no record for the asset
func (c *Client) GetProjectVault(ctx context.Context, projectID uint64, asset common.Address) (*types.ProjectVault, error) {
	var out types.ProjectVault
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/vault/projects/%d/%s", projectID, asset.Hex()), nil, &out)
	if re, ok := err.(*ResponseError); ok && re.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSignatureStatus(ctx context.Context, fp types.Fingerprint) (*types.SignatureStatusResponse, error) {
	var out types.SignatureStatusResponse
	if err := c.do(ctx, http.MethodGet, "/vault/signatures/"+fp.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns nil when the server and its persistence are reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
