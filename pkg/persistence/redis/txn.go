package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/redis/go-redis/v9"
)

// keyReader is the read surface shared by *redis.Client and *redis.Tx
type keyReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// redisTxn buffers writes until commit and WATCHes every key it reads.
// In a View, tx is nil and writes are rejected.
type redisTxn struct {
	ctx    context.Context
	r      *RedisPersistence
	reader keyReader
	tx     *redis.Tx

	// staged values by unprefixed key; a nil value is a delete
	writes map[string][]byte
	order  []string

	// staged project index membership, true = add
	index map[string]bool
}

var _ persistence.IVaultTxn = (*redisTxn)(nil)

func newRedisTxn(ctx context.Context, r *RedisPersistence, reader keyReader, tx *redis.Tx) *redisTxn {
	return &redisTxn{
		ctx:    ctx,
		r:      r,
		reader: reader,
		tx:     tx,
		writes: make(map[string][]byte),
		index:  make(map[string]bool),
	}
}

func (t *redisTxn) dirty() bool {
	return len(t.order) > 0 || len(t.index) > 0
}

func (t *redisTxn) watch(keys ...string) error {
	if t.tx == nil {
		return nil
	}
	if err := t.tx.Watch(t.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to watch keys: %w", err)
	}
	return nil
}

func (t *redisTxn) get(key string) ([]byte, error) {
	if v, staged := t.writes[key]; staged {
		return v, nil
	}

	full := t.r.prefixKey(key)
	if err := t.watch(full); err != nil {
		return nil, err
	}
	data, err := t.reader.Get(t.ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (t *redisTxn) stage(key string, value []byte) error {
	if t.tx == nil {
		return fmt.Errorf("write in read-only transaction")
	}
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = value
	return nil
}

// flush queues staged writes on the MULTI pipeline
func (t *redisTxn) flush(pipe redis.Pipeliner) {
	for _, key := range t.order {
		full := t.r.prefixKey(key)
		if v := t.writes[key]; v == nil {
			pipe.Del(t.ctx, full)
		} else {
			pipe.Set(t.ctx, full, v, 0)
		}
	}

	indexKey := t.r.prefixKey(persistence.KeyProjectVaultIndex)
	for member, add := range t.index {
		if add {
			pipe.SAdd(t.ctx, indexKey, member)
		} else {
			pipe.SRem(t.ctx, indexKey, member)
		}
	}
}

func (t *redisTxn) GetAuthority() (*types.VaultAuthority, error) {
	data, err := t.get(persistence.KeyAuthority)
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalAuthority(data)
}

func (t *redisTxn) PutAuthority(auth *types.VaultAuthority) error {
	data, err := persistence.MarshalAuthority(auth)
	if err != nil {
		return err
	}
	return t.stage(persistence.KeyAuthority, data)
}

func (t *redisTxn) GetProjectVault(key types.ProjectVaultKey) (*types.ProjectVault, error) {
	data, err := t.get(persistence.ProjectVaultStorageKey(key))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalProjectVault(data)
}

// ListProjectVaults reads the index set (Redis has no ordered prefix scan)
// and then every member
func (t *redisTxn) ListProjectVaults() ([]*types.ProjectVault, error) {
	indexKey := t.r.prefixKey(persistence.KeyProjectVaultIndex)
	if err := t.watch(indexKey); err != nil {
		return nil, err
	}

	members, err := t.reader.SMembers(t.ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list project vault keys: %w", err)
	}

	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		if isProjectKey(m) {
			set[m] = struct{}{}
		}
	}
	for m, add := range t.index {
		if add {
			set[m] = struct{}{}
		} else {
			delete(set, m)
		}
	}

	keys := make([]string, 0, len(set))
	for m := range set {
		keys = append(keys, m)
	}
	sort.Strings(keys)

	vaults := make([]*types.ProjectVault, 0, len(keys))
	for _, key := range keys {
		data, err := t.get(key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		pv, err := persistence.UnmarshalProjectVault(data)
		if err != nil {
			t.r.logger.Sugar().Warnw("Failed to unmarshal ProjectVault, skipping", "key", key, "error", err)
			continue
		}
		vaults = append(vaults, pv)
	}

	// Padded storage keys already sort correctly; keep the shared order explicit
	persistence.SortProjectVaults(vaults)
	return vaults, nil
}

func (t *redisTxn) PutProjectVault(pv *types.ProjectVault) error {
	data, err := persistence.MarshalProjectVault(pv)
	if err != nil {
		return err
	}
	key := persistence.ProjectVaultStorageKey(pv.Key())
	if err := t.stage(key, data); err != nil {
		return err
	}
	t.index[key] = true
	return nil
}

func (t *redisTxn) DeleteProjectVault(key types.ProjectVaultKey) error {
	storageKey := persistence.ProjectVaultStorageKey(key)
	if err := t.stage(storageKey, nil); err != nil {
		return err
	}
	t.index[storageKey] = false
	return nil
}

func (t *redisTxn) GetSignatureRecord(fp types.Fingerprint) (*types.UsedSignatureRecord, error) {
	data, err := t.get(persistence.SignatureStorageKey(fp))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalSignatureRecord(data)
}

func (t *redisTxn) PutSignatureRecord(rec *types.UsedSignatureRecord) error {
	data, err := persistence.MarshalSignatureRecord(rec)
	if err != nil {
		return err
	}
	return t.stage(persistence.SignatureStorageKey(rec.Fingerprint), data)
}

func (t *redisTxn) DeleteSignatureRecord(fp types.Fingerprint) error {
	return t.stage(persistence.SignatureStorageKey(fp), nil)
}

// isProjectKey reports whether an index member looks like a project vault key
func isProjectKey(member string) bool {
	return strings.HasPrefix(member, persistence.KeyPrefixProjectVault)
}
