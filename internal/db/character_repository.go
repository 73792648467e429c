package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CharacterRepository is the storage-side half of the GS's character-count
// lookup. Characters are an opaque record here: the login/game-server tier
// only needs how many a given account owns and the names of those flagged
// for deletion.
type CharacterRepository struct {
	pool *pgxpool.Pool
}

// NewCharacterRepository creates a PostgreSQL-backed CharacterRepository.
func NewCharacterRepository(pool *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{pool: pool}
}

// CountByAccount returns how many live (not deletion-pending) characters the
// account owns.
func (r *CharacterRepository) CountByAccount(ctx context.Context, accountName string) (int32, error) {
	accountName = strings.ToLower(accountName)
	var count int32
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM characters WHERE account_name = $1 AND NOT deleted`, accountName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting characters for %q: %w", accountName, err)
	}
	return count, nil
}

// PendingDeletionByAccount returns the names of the account's characters
// flagged for deletion, reported back to the LS in ReplyCharacters.
func (r *CharacterRepository) PendingDeletionByAccount(ctx context.Context, accountName string) ([]string, error) {
	accountName = strings.ToLower(accountName)
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM characters WHERE account_name = $1 AND deleted ORDER BY character_id`, accountName,
	)
	if err != nil {
		return nil, fmt.Errorf("querying deletion-pending characters for %q: %w", accountName, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning character name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deletion-pending characters: %w", err)
	}
	return names, nil
}
