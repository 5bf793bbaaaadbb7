package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
)

// MarshalAuthority serializes a VaultAuthority to JSON bytes.
func MarshalAuthority(auth *types.VaultAuthority) ([]byte, error) {
	if auth == nil {
		return nil, fmt.Errorf("cannot marshal nil VaultAuthority")
	}

	data, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal VaultAuthority to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalAuthority deserializes a VaultAuthority from JSON bytes.
func UnmarshalAuthority(data []byte) (*types.VaultAuthority, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var auth types.VaultAuthority
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to VaultAuthority: %w", err)
	}

	return &auth, nil
}

// MarshalProjectVault serializes a ProjectVault to JSON bytes.
func MarshalProjectVault(pv *types.ProjectVault) ([]byte, error) {
	if pv == nil {
		return nil, fmt.Errorf("cannot marshal nil ProjectVault")
	}

	return json.Marshal(pv)
}

// UnmarshalProjectVault deserializes a ProjectVault from JSON bytes.
func UnmarshalProjectVault(data []byte) (*types.ProjectVault, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var pv types.ProjectVault
	if err := json.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ProjectVault: %w", err)
	}

	return &pv, nil
}

// MarshalSignatureRecord serializes a UsedSignatureRecord to JSON bytes.
func MarshalSignatureRecord(rec *types.UsedSignatureRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot marshal nil UsedSignatureRecord")
	}

	return json.Marshal(rec)
}

// UnmarshalSignatureRecord deserializes a UsedSignatureRecord from JSON bytes.
func UnmarshalSignatureRecord(data []byte) (*types.UsedSignatureRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var rec types.UsedSignatureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to UsedSignatureRecord: %w", err)
	}

	return &rec, nil
}

// LessProjectVaultKey orders keys by project id, then asset bytes
func LessProjectVaultKey(a, b types.ProjectVaultKey) bool {
	if a.ProjectID != b.ProjectID {
		return a.ProjectID < b.ProjectID
	}
	return bytes.Compare(a.AssetID.Bytes(), b.AssetID.Bytes()) < 0
}

// SortProjectVaults sorts in place using LessProjectVaultKey
func SortProjectVaults(vaults []*types.ProjectVault) {
	sort.Slice(vaults, func(i, j int) bool {
		return LessProjectVaultKey(vaults[i].Key(), vaults[j].Key())
	})
}
