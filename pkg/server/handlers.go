package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/Layr-Labs/reward-vault-go/pkg/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// decode reads a JSON body, answering the request itself on failure
func decode(w http.ResponseWriter, r *http.Request, method string, into interface{}) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody(r, 0, "MethodNotAllowed", "method not allowed"))
		return false
	}
	if method == http.MethodGet {
		return true
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		badRequest(w, r, fmt.Sprintf("failed to parse request: %v", err))
		return false
	}
	return true
}

func operationResponse(res *vault.OperationResult) *types.OperationResponse {
	return &types.OperationResponse{Fingerprint: res.Fingerprint, ProjectVault: res.ProjectVault}
}

func (s *Server) authorityResponse(auth *types.VaultAuthority) *types.AuthorityResponse {
	return &types.AuthorityResponse{
		Domain:         s.vault.Domain(),
		CustodyAddress: s.vault.CustodyAddress(),
		Authority:      auth,
	}
}

// handleInitialize handles the /vault/initialize endpoint
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req types.InitializeRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	auth, err := s.vault.Initialize(r.Context(), req.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.authorityResponse(auth))
}

// handleConfigureSigner handles the /vault/signers endpoint
func (s *Server) handleConfigureSigner(w http.ResponseWriter, r *http.Request) {
	var req types.ConfigureSignerRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	auth, err := s.vault.ConfigureSigner(r.Context(), &vault.ConfigureSignerRequest{
		Signer: req.Signer,
		Add:    req.Add,
		Proof:  &req.Proof,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.authorityResponse(auth))
}

// handleTransferOwnership handles the /vault/ownership endpoint
func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req types.TransferOwnershipRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	auth, err := s.vault.TransferOwnership(r.Context(), &vault.TransferOwnershipRequest{
		NewOwner: req.NewOwner,
		Proof:    &req.Proof,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.authorityResponse(auth))
}

// handleDeposit handles the /vault/deposit endpoint
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req types.DepositRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	res, err := s.vault.Deposit(r.Context(), &vault.DepositRequest{
		Param:                  req.Param,
		Authorization:          req.Authorization,
		DepositorAuthorization: req.DepositorAuthorization,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse(res))
}

// handleWithdraw handles the /vault/withdraw endpoint
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req types.WithdrawRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	res, err := s.vault.Withdraw(r.Context(), &vault.WithdrawRequest{Param: req.Param, Authorization: req.Authorization})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse(res))
}

// handleClaim handles the /vault/claim endpoint
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req types.ClaimRequestV1
	if !decode(w, r, http.MethodPost, &req) {
		return
	}

	res, err := s.vault.Claim(r.Context(), &vault.ClaimRequest{Param: req.Param, Authorization: req.Authorization})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse(res))
}

func (s *Server) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	if !decode(w, r, http.MethodGet, nil) {
		return
	}

	auth, err := s.vault.GetAuthority(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.authorityResponse(auth))
}

func (s *Server) handleListProjectVaults(w http.ResponseWriter, r *http.Request) {
	if !decode(w, r, http.MethodGet, nil) {
		return
	}

	vaults, err := s.vault.ListProjectVaults(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.ProjectVaultsResponse{ProjectVaults: vaults})
}

func (s *Server) handleGetProjectVault(w http.ResponseWriter, r *http.Request) {
	if !decode(w, r, http.MethodGet, nil) {
		return
	}

	key, err := types.ParseProjectVaultKey(r.PathValue("projectId") + ":" + r.PathValue("asset"))
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	pv, err := s.vault.GetProjectVault(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pv == nil {
		writeJSON(w, http.StatusNotFound, errorBody(r, 0, "NotFound", "project vault not found"))
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

func (s *Server) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	if !decode(w, r, http.MethodGet, nil) {
		return
	}

	raw, err := hexutil.Decode(r.PathValue("fingerprint"))
	if err != nil || len(raw) != common.HashLength {
		badRequest(w, r, "fingerprint must be 32 hex encoded bytes")
		return
	}
	fp := common.BytesToHash(raw)

	rec, err := s.vault.GetSignatureRecord(r.Context(), fp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.SignatureStatusResponse{
		Fingerprint: fp,
		Used:        rec != nil && rec.Consumed,
		Record:      rec,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !decode(w, r, http.MethodGet, nil) {
		return
	}

	if err := s.vault.HealthCheck(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, &types.HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, &types.HealthResponse{Status: "ok"})
}
