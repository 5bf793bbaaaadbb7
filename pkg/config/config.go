package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for vault server configuration
const (
	EnvVaultPort            = "VAULT_PORT"
	EnvVaultChainID         = "VAULT_CHAIN_ID"
	EnvVaultAddress         = "VAULT_ADDRESS"
	EnvVaultInitialOwner    = "VAULT_INITIAL_OWNER"
	EnvVaultMaxSigners      = "VAULT_MAX_SIGNERS"
	EnvVaultDebug           = "VAULT_DEBUG"
	EnvVaultRateLimit       = "VAULT_RATE_LIMIT"
	EnvVaultRateBurst       = "VAULT_RATE_BURST"
	EnvVaultEventChannel    = "VAULT_EVENT_CHANNEL"
	EnvVaultPersistenceType = "VAULT_PERSISTENCE_TYPE"
	EnvVaultBadgerPath      = "VAULT_BADGER_PATH"
	EnvVaultRedisAddress    = "VAULT_REDIS_ADDRESS"
	EnvVaultRedisPassword   = "VAULT_REDIS_PASSWORD"
	EnvVaultRedisDB         = "VAULT_REDIS_DB"
	EnvVaultRedisKeyPrefix  = "VAULT_REDIS_KEY_PREFIX"
	EnvVaultDevMints        = "VAULT_DEV_MINTS"
)

type ChainId uint64

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}

// PersistenceType selects a storage backend
type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

func (p PersistenceType) String() string {
	return string(p)
}

// PersistenceConfig configures the storage backend
type PersistenceConfig struct {
	Type PersistenceType `json:"type"`

	// BadgerPath is the data directory when Type is badger
	BadgerPath string `json:"badger_path"`

	RedisAddress   string `json:"redis_address"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        int    `json:"redis_db"`
	RedisKeyPrefix string `json:"redis_key_prefix"`
}

// Validate checks the backend specific settings
func (pc *PersistenceConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerPath"), "badger path is required for badger persistence"))
		} else if abs, err := filepath.Abs(pc.BadgerPath); err != nil {
			allErrors = append(allErrors, field.Invalid(path.Child("badgerPath"), pc.BadgerPath, err.Error()))
		} else if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			allErrors = append(allErrors, field.Invalid(path.Child("badgerPath"), pc.BadgerPath, "must be a directory"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redis address is required for redis persistence"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDB"), pc.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String()}))
	}

	return allErrors
}

// VaultServerConfig represents the complete configuration for a vault server
type VaultServerConfig struct {
	Port int `json:"port"`

	// Deployment domain
	ChainID      ChainId   `json:"chain_id"`
	ChainName    ChainName `json:"chain_name"`
	VaultAddress string    `json:"vault_address"`

	// InitialOwner, when set, initializes the vault at startup if it is not yet initialized
	InitialOwner string `json:"initial_owner"`
	MaxSigners   int    `json:"max_signers"`

	// Requests per second accepted by the HTTP server; 0 disables limiting
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// EventChannel is the Redis pub/sub channel for events when persistence is redis
	EventChannel string `json:"event_channel"`

	// DevMints seeds the in-memory ledger, each entry is "account:asset:amount"
	DevMints []string `json:"dev_mints"`

	Persistence PersistenceConfig `json:"persistence"`

	Debug bool `json:"debug"`
}

// Validate validates the vault server configuration
func (c *VaultServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	if c.ChainID == 0 {
		allErrors = append(allErrors, field.Required(field.NewPath("chainId"), "chain id is required"))
	}

	if c.VaultAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("vaultAddress"), "vault address is required"))
	} else if !common.IsHexAddress(c.VaultAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("vaultAddress"), c.VaultAddress, "invalid address format"))
	} else if common.HexToAddress(c.VaultAddress) == (common.Address{}) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("vaultAddress"), c.VaultAddress, "must not be the zero address"))
	}

	if c.InitialOwner != "" && !common.IsHexAddress(c.InitialOwner) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("initialOwner"), c.InitialOwner, "invalid address format"))
	}

	if c.MaxSigners < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxSigners"), c.MaxSigners, "must not be negative"))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}

	for i, m := range c.DevMints {
		if _, err := ParseDevMint(m); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("devMints").Index(i), m, err.Error()))
		}
	}

	allErrors = append(allErrors, c.Persistence.Validate(field.NewPath("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}

	if name, ok := ChainIdToName[c.ChainID]; ok {
		c.ChainName = name
	} else {
		c.ChainName = ChainName(fmt.Sprintf("chain-%d", c.ChainID))
	}
	return nil
}

// GetVaultAddress returns the parsed vault address. Call after Validate.
func (c *VaultServerConfig) GetVaultAddress() common.Address {
	return common.HexToAddress(c.VaultAddress)
}

// GetInitialOwner returns the parsed initial owner, if one is configured
func (c *VaultServerConfig) GetInitialOwner() (common.Address, bool) {
	if c.InitialOwner == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.InitialOwner), true
}

// DevMint is one initial balance of the in-memory ledger
type DevMint struct {
	Account common.Address
	Asset   common.Address
	Amount  uint64
}

// ParseDevMint parses "account:asset:amount"
func ParseDevMint(s string) (*DevMint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected account:asset:amount")
	}
	if !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return nil, fmt.Errorf("invalid address")
	}
	amount, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return &DevMint{
		Account: common.HexToAddress(parts[0]),
		Asset:   common.HexToAddress(parts[1]),
		Amount:  amount,
	}, nil
}
