package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/vault"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes the vault coordinator over HTTP.

Owner-gated calls:
  POST /vault/signers    { signer, add, proof }
  POST /vault/ownership  { newOwner, proof }
    - proof is the owner's signature over an AdminAction naming the action,
      its target, a nonce and an expiration
    - the proof is consumed, so it cannot be replayed

Signer-gated calls:
  POST /vault/deposit    { param, authorization, depositorAuthorization }
    - authorization: co-signature of a registered signer over the deposit message
    - depositorAuthorization: the depositor's signature over the same message,
      identifying the account funds are pulled from
  POST /vault/withdraw   { param, authorization }
  POST /vault/claim      { param, authorization }

Bootstrap:
  POST /vault/initialize { owner }
    - succeeds exactly once per deployment

Queries:
  GET /vault/authority
  GET /vault/projects
  GET /vault/projects/{projectId}/{asset}
  GET /vault/signatures/{fingerprint}
  GET /health

Every response carries an X-Request-ID header. Failures return an
ErrorResponse whose code is the stable vault error code.
*/

const maxRequestBodyBytes = 1 << 20

// ServerConfig configures the HTTP transport
type ServerConfig struct {
	Port int

	// RateLimit is the sustained requests per second; 0 disables limiting
	RateLimit float64
	RateBurst int
}

// Server handles HTTP requests for a vault
type Server struct {
	vault      *vault.Vault
	logger     *zap.Logger
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(v *vault.Vault, cfg *ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		vault:  v,
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	mux := http.NewServeMux()

	// Authority management
	mux.HandleFunc("/vault/initialize", s.handleInitialize)
	mux.HandleFunc("/vault/signers", s.handleConfigureSigner)
	mux.HandleFunc("/vault/ownership", s.handleTransferOwnership)

	// Fund movement
	mux.HandleFunc("/vault/deposit", s.handleDeposit)
	mux.HandleFunc("/vault/withdraw", s.handleWithdraw)
	mux.HandleFunc("/vault/claim", s.handleClaim)

	// Queries
	mux.HandleFunc("/vault/authority", s.handleGetAuthority)
	mux.HandleFunc("/vault/projects", s.handleListProjectVaults)
	mux.HandleFunc("/vault/projects/{projectId}/{asset}", s.handleGetProjectVault)
	mux.HandleFunc("/vault/signatures/{fingerprint}", s.handleGetSignature)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRequestID(s.withRateLimit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "vault", s.vault.Domain().VaultAddress.Hex(), "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
