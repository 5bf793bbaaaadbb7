package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/logger"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/Layr-Labs/reward-vault-go/pkg/vaultclient"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
)

func main() {
	projectFlags := []cli.Flag{
		&cli.Uint64Flag{Name: "project-id", Usage: "Project ID", Required: true},
		&cli.StringFlag{Name: "asset", Usage: "Asset address", Required: true},
		&cli.Uint64Flag{Name: "amount", Usage: "Amount in base units", Required: true},
		&cli.Uint64Flag{Name: "id", Usage: "Deposit, withdrawal or claim ID", Required: true},
		&cli.DurationFlag{Name: "expires-in", Usage: "Validity of the authorization", Value: 5 * time.Minute},
		&cli.StringFlag{Name: "signer-key", Usage: "Private key (hex) of a registered signer", Required: true},
	}
	releaseFlags := append([]cli.Flag{
		&cli.StringFlag{Name: "recipient", Usage: "Recipient address", Required: true},
	}, projectFlags...)
	adminFlags := []cli.Flag{
		&cli.StringFlag{Name: "owner-key", Usage: "Private key (hex) of the vault owner", Required: true},
		&cli.Uint64Flag{Name: "nonce", Usage: "Nonce of the owner proof, unique per action", Value: uint64(time.Now().UnixNano())},
		&cli.DurationFlag{Name: "expires-in", Usage: "Validity of the owner proof", Value: 5 * time.Minute},
	}

	app := &cli.App{
		Name:  "vault-client",
		Usage: "Client for a reward vault server",
		Description: `Signs vault messages and submits them to a vault server.

Every signature is bound to the vault domain given by --chain-id and --vault-address.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "Vault server URL",
				Value: "http://localhost:8000",
			},
			&cli.Uint64Flag{
				Name:     "chain-id",
				Usage:    "Chain ID of the vault domain",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "vault-address",
				Usage:    "Vault address of the vault domain",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server health",
				Action: healthCommand,
			},
			{
				Name:   "authority",
				Usage:  "Show owner and signers",
				Action: authorityCommand,
			},
			{
				Name:   "projects",
				Usage:  "List project vaults",
				Action: projectsCommand,
			},
			{
				Name:  "signature",
				Usage: "Show whether an authorization fingerprint was consumed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "fingerprint", Usage: "Fingerprint (hex)", Required: true},
				},
				Action: signatureCommand,
			},
			{
				Name:  "initialize",
				Usage: "Initialize the vault with an owner",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owner address", Required: true},
				},
				Action: initializeCommand,
			},
			{
				Name:   "add-signer",
				Usage:  "Add a signer",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "signer", Usage: "Signer address", Required: true}}, adminFlags...),
				Action: configureSignerCommand(true),
			},
			{
				Name:   "remove-signer",
				Usage:  "Remove a signer",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "signer", Usage: "Signer address", Required: true}}, adminFlags...),
				Action: configureSignerCommand(false),
			},
			{
				Name:   "transfer-ownership",
				Usage:  "Transfer vault ownership",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "new-owner", Usage: "New owner address", Required: true}}, adminFlags...),
				Action: transferOwnershipCommand,
			},
			{
				Name:  "deposit",
				Usage: "Deposit funds into custody for a project",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "depositor-key", Usage: "Private key (hex) of the depositor", Required: true},
				}, projectFlags...),
				Action: depositCommand,
			},
			{
				Name:   "withdraw",
				Usage:  "Withdraw custodied funds of a project",
				Flags:  releaseFlags,
				Action: withdrawCommand,
			},
			{
				Name:   "claim",
				Usage:  "Pay out a reward claim from a project",
				Flags:  releaseFlags,
				Action: claimCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// createClient creates a new vault client from CLI context
func createClient(c *cli.Context) (*vaultclient.Client, error) {
	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	vaultAddress := c.String("vault-address")
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("invalid vault address: %s", vaultAddress)
	}

	client, err := vaultclient.NewClient(&vaultclient.ClientConfig{
		BaseURL: c.String("server-url"),
		Domain: types.VaultDomain{
			ChainID:      c.Uint64("chain-id"),
			VaultAddress: common.HexToAddress(vaultAddress),
		},
		Logger: zapLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	return client, nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func parseAddress(c *cli.Context, name string) (common.Address, error) {
	s := c.String(name)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address for --%s: %s", name, s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func healthCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	if err := client.Health(c.Context); err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}
	fmt.Println("✅ Vault server is healthy")
	return nil
}

func authorityCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	resp, err := client.GetAuthority(c.Context)
	if err != nil {
		return fmt.Errorf("failed to get authority: %w", err)
	}
	return printJSON(resp)
}

func projectsCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	vaults, err := client.ListProjectVaults(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list project vaults: %w", err)
	}
	return printJSON(vaults)
}

func signatureCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	raw, err := hexutil.Decode(c.String("fingerprint"))
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("fingerprint must be 32 hex encoded bytes")
	}
	resp, err := client.GetSignatureStatus(c.Context, common.BytesToHash(raw))
	if err != nil {
		return fmt.Errorf("failed to get signature status: %w", err)
	}
	return printJSON(resp)
}

func initializeCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	owner, err := parseAddress(c, "owner")
	if err != nil {
		return err
	}
	resp, err := client.Initialize(c.Context, owner)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	return printJSON(resp)
}

func configureSignerCommand(add bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := createClient(c)
		if err != nil {
			return err
		}
		ownerKey, err := parseKey(c.String("owner-key"))
		if err != nil {
			return err
		}
		signer, err := parseAddress(c, "signer")
		if err != nil {
			return err
		}

		expiration := time.Now().Add(c.Duration("expires-in"))
		var resp *types.AuthorityResponse
		if add {
			resp, err = client.AddSigner(c.Context, ownerKey, signer, c.Uint64("nonce"), expiration)
		} else {
			resp, err = client.RemoveSigner(c.Context, ownerKey, signer, c.Uint64("nonce"), expiration)
		}
		if err != nil {
			return fmt.Errorf("failed to configure signer: %w", err)
		}
		return printJSON(resp)
	}
}

func transferOwnershipCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	ownerKey, err := parseKey(c.String("owner-key"))
	if err != nil {
		return err
	}
	newOwner, err := parseAddress(c, "new-owner")
	if err != nil {
		return err
	}
	resp, err := client.TransferOwnership(c.Context, ownerKey, newOwner, c.Uint64("nonce"), time.Now().Add(c.Duration("expires-in")))
	if err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
	}
	return printJSON(resp)
}

func depositCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	depositorKey, err := parseKey(c.String("depositor-key"))
	if err != nil {
		return err
	}
	signerKey, err := parseKey(c.String("signer-key"))
	if err != nil {
		return err
	}
	asset, err := parseAddress(c, "asset")
	if err != nil {
		return err
	}

	p := types.DepositParam{
		ProjectID:      c.Uint64("project-id"),
		DepositID:      c.Uint64("id"),
		AssetID:        asset,
		Amount:         c.Uint64("amount"),
		ExpirationTime: time.Now().Add(c.Duration("expires-in")).Unix(),
	}
	cosig, err := client.SignDeposit(signerKey, &p)
	if err != nil {
		return err
	}
	resp, err := client.Deposit(c.Context, depositorKey, p, *cosig)
	if err != nil {
		return fmt.Errorf("deposit failed: %w", err)
	}
	return printJSON(resp)
}

func withdrawCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	signerKey, err := parseKey(c.String("signer-key"))
	if err != nil {
		return err
	}
	asset, err := parseAddress(c, "asset")
	if err != nil {
		return err
	}
	recipient, err := parseAddress(c, "recipient")
	if err != nil {
		return err
	}

	p := types.WithdrawalParam{
		ProjectID:      c.Uint64("project-id"),
		WithdrawalID:   c.Uint64("id"),
		AssetID:        asset,
		Amount:         c.Uint64("amount"),
		Recipient:      recipient,
		ExpirationTime: time.Now().Add(c.Duration("expires-in")).Unix(),
	}
	auth, err := client.SignWithdrawal(signerKey, &p)
	if err != nil {
		return err
	}
	resp, err := client.Withdraw(c.Context, p, *auth)
	if err != nil {
		return fmt.Errorf("withdraw failed: %w", err)
	}
	return printJSON(resp)
}

func claimCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	signerKey, err := parseKey(c.String("signer-key"))
	if err != nil {
		return err
	}
	asset, err := parseAddress(c, "asset")
	if err != nil {
		return err
	}
	recipient, err := parseAddress(c, "recipient")
	if err != nil {
		return err
	}

	p := types.ClaimParam{
		ProjectID:      c.Uint64("project-id"),
		ClaimID:        c.Uint64("id"),
		AssetID:        asset,
		Amount:         c.Uint64("amount"),
		Recipient:      recipient,
		ExpirationTime: time.Now().Add(c.Duration("expires-in")).Unix(),
	}
	auth, err := client.SignClaim(signerKey, &p)
	if err != nil {
		return err
	}
	resp, err := client.Claim(c.Context, p, *auth)
	if err != nil {
		return fmt.Errorf("claim failed: %w", err)
	}
	return printJSON(resp)
}
