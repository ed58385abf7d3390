package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"drift-gateway/internal/logic/decoder"
)

// ActionStore 管理 drift_action_logs 表的读写。
// (signature, instruction_index) 为主键，重复写入只覆盖更新。
type ActionStore struct {
	db *sql.DB
}

func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

// EnsureSchema 启动时建表（幂等）。
func (s *ActionStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS drift_action_logs (
			signature         TEXT        NOT NULL,
			slot              BIGINT      NOT NULL,
			block_time        BIGINT,
			instruction_index INT         NOT NULL,
			action_type       TEXT        NOT NULL,
			market_index      INT,
			perp_market_index INT,
			spot_market_index INT,
			direction         TEXT,
			base_asset_amount NUMERIC,
			price             NUMERIC,
			reduce_only       BOOLEAN,
			leverage          DOUBLE PRECISION,
			amount            NUMERIC,
			token_account     TEXT,
			token_mint        TEXT,
			token_amount      NUMERIC,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (signature, instruction_index)
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure drift_action_logs schema failed: %w", err)
	}
	return nil
}

// InsertActions 逐条 upsert 动作记录。
// 同一 (signature, instruction_index) 冲突时全量覆盖，保证回补可重放。
func (s *ActionStore) InsertActions(ctx context.Context, records []*decoder.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO drift_action_logs (
			signature, slot, block_time, instruction_index, action_type,
			market_index, perp_market_index, spot_market_index,
			direction, base_asset_amount, price, reduce_only, leverage,
			amount, token_account, token_mint, token_amount
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (signature, instruction_index) DO UPDATE SET
			slot              = EXCLUDED.slot,
			block_time        = EXCLUDED.block_time,
			action_type       = EXCLUDED.action_type,
			market_index      = EXCLUDED.market_index,
			perp_market_index = EXCLUDED.perp_market_index,
			spot_market_index = EXCLUDED.spot_market_index,
			direction         = EXCLUDED.direction,
			base_asset_amount = EXCLUDED.base_asset_amount,
			price             = EXCLUDED.price,
			reduce_only       = EXCLUDED.reduce_only,
			leverage          = EXCLUDED.leverage,
			amount            = EXCLUDED.amount,
			token_account     = EXCLUDED.token_account,
			token_mint        = EXCLUDED.token_mint,
			token_amount      = EXCLUDED.token_amount
	`
	for _, r := range records {
		_, err := s.db.ExecContext(ctx, query,
			r.Signature, int64(r.Slot), r.BlockTime, r.InstructionIndex, r.ActionType,
			nullableU16(r.MarketIndex), nullableU16(r.PerpMarketIndex), nullableU16(r.SpotMarketIndex),
			r.Direction, nullableU64(r.BaseAssetAmount), nullableU64(r.Price), r.ReduceOnly, r.Leverage,
			nullableU64(r.Amount), r.TokenAccount, r.TokenMint, nullableU64(r.TokenAmount),
		)
		if err != nil {
			return fmt.Errorf("upsert action %s#%d failed: %w", r.Signature, r.InstructionIndex, err)
		}
	}
	return nil
}

// FetchActions 按 slot 倒序返回最近的动作记录。
func (s *ActionStore) FetchActions(ctx context.Context, limit int) ([]*decoder.ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT signature, slot, block_time, instruction_index, action_type,
		       market_index, perp_market_index, spot_market_index,
		       direction, base_asset_amount, price, reduce_only, leverage,
		       amount, token_account, token_mint, token_amount
		FROM drift_action_logs
		ORDER BY slot DESC, signature, instruction_index
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch actions failed: %w", err)
	}
	defer rows.Close()

	records := make([]*decoder.ActionRecord, 0, limit)
	for rows.Next() {
		var (
			r                                decoder.ActionRecord
			slot                             int64
			marketIdx, perpIdx, spotIdx      sql.NullInt64
			baseAmt, price, amount, tokenAmt sql.NullString
		)
		err := rows.Scan(
			&r.Signature, &slot, &r.BlockTime, &r.InstructionIndex, &r.ActionType,
			&marketIdx, &perpIdx, &spotIdx,
			&r.Direction, &baseAmt, &price, &r.ReduceOnly, &r.Leverage,
			&amount, &r.TokenAccount, &r.TokenMint, &tokenAmt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan action row failed: %w", err)
		}
		r.Slot = uint64(slot)
		r.MarketIndex = nullInt64ToU16(marketIdx)
		r.PerpMarketIndex = nullInt64ToU16(perpIdx)
		r.SpotMarketIndex = nullInt64ToU16(spotIdx)
		if r.BaseAssetAmount, err = nullNumericToU64(baseAmt); err != nil {
			return nil, fmt.Errorf("scan action row failed: %w", err)
		}
		if r.Price, err = nullNumericToU64(price); err != nil {
			return nil, fmt.Errorf("scan action row failed: %w", err)
		}
		if r.Amount, err = nullNumericToU64(amount); err != nil {
			return nil, fmt.Errorf("scan action row failed: %w", err)
		}
		if r.TokenAmount, err = nullNumericToU64(tokenAmt); err != nil {
			return nil, fmt.Errorf("scan action row failed: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func nullableU16(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// u64 以十进制字符串走 NUMERIC 列，避免 int64 截断高位
func nullableU64(v *uint64) any {
	if v == nil {
		return nil
	}
	return strconv.FormatUint(*v, 10)
}

func nullInt64ToU16(v sql.NullInt64) *uint16 {
	if !v.Valid {
		return nil
	}
	u := uint16(v.Int64)
	return &u
}

func nullNumericToU64(v sql.NullString) (*uint64, error) {
	if !v.Valid {
		return nil, nil
	}
	u, err := strconv.ParseUint(v.String, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q as u64 failed: %w", v.String, err)
	}
	return &u, nil
}
