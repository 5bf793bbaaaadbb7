package persistence

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
)

// Storage key layout shared by the key-value backends
const (
	KeyAuthority          = "vault:authority"
	KeyPrefixProjectVault = "vault:project:"
	KeyPrefixSignature    = "vault:signature:"
	KeySchemaVersion      = "vault:metadata:schema_version"
	KeyProjectVaultIndex  = "vault:projects:index"
	CurrentSchemaVersion  = "v1"
)

// ProjectVaultStorageKey zero-pads the project id so lexicographic key order
// matches numeric order
func ProjectVaultStorageKey(key types.ProjectVaultKey) string {
	return fmt.Sprintf("%s%020d:%s", KeyPrefixProjectVault, key.ProjectID, strings.ToLower(key.AssetID.Hex()))
}

func SignatureStorageKey(fp types.Fingerprint) string {
	return KeyPrefixSignature + fp.Hex()
}
