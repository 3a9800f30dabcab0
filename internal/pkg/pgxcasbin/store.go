package pgxcasbin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

const (
	defaultTableName = "access_rules"

	// ruleFields matches Casbin's widest rule shape (v0..v5).
	ruleFields = 6
)

// Commander defines the pgx operations required by the adapter store.
type Commander interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ruleStore issues the SQL behind the adapter. Every statement addresses a
// single table with columns ptype, v0..v5.
type ruleStore struct {
	db    Commander
	table string
}

func newRuleStore(db Commander) *ruleStore {
	return &ruleStore{db: db, table: defaultTableName}
}

func (s *ruleStore) setTable(name string) {
	s.table = lo.SnakeCase(name)
}

func columnList() string {
	return strings.Join(lo.Times(ruleFields, func(i int) string {
		return "v" + strconv.Itoa(i)
	}), ",")
}

func paramList() string {
	return strings.Join(lo.Times(ruleFields, func(i int) string {
		return "$" + strconv.Itoa(i+2)
	}), ",")
}

func equalityList() string {
	return strings.Join(lo.Times(ruleFields, func(i int) string {
		return "v" + strconv.Itoa(i) + " = $" + strconv.Itoa(i+2)
	}), " and ")
}

func (s *ruleStore) insertStmt() string {
	return fmt.Sprintf(
		"insert into %[1]s (ptype, %[2]s) values ($1, %[3]s) on conflict (ptype, %[2]s) do nothing",
		s.table, columnList(), paramList(),
	)
}

func (s *ruleStore) insertRule(ctx context.Context, ptype string, args ...string) error {
	normalized, err := padRule(args)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, s.insertStmt(), lo.ToAnySlice(prependPtype(ptype, normalized))...); err != nil {
		return errors.Join(ErrInsertRow, err)
	}
	return nil
}

func (s *ruleStore) deleteRule(ctx context.Context, ptype string, args ...string) error {
	normalized, err := padRule(args)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("delete from %s where ptype = $1 and %s", s.table, equalityList())
	if _, err := s.db.Exec(ctx, query, lo.ToAnySlice(prependPtype(ptype, normalized))...); err != nil {
		return errors.Join(ErrDeleteRow, err)
	}
	return nil
}

func (s *ruleStore) deleteFiltered(ctx context.Context, ptype string, startIdx int, args ...string) error {
	if ptype == "" {
		return ErrEmptyPtype
	}
	if len(args) > ruleFields-startIdx {
		return fmt.Errorf("%w: %d > %d", ErrArgsTooLong, len(args), ruleFields-startIdx)
	}

	query := fmt.Sprintf("delete from %s where ptype = $1", s.table)
	argsList := []any{ptype}
	for i, arg := range args {
		if lo.IsEmpty(arg) {
			continue
		}
		query += " and v" + strconv.Itoa(i+startIdx) + " = $" + strconv.Itoa(len(argsList)+1)
		argsList = append(argsList, arg)
	}

	if _, err := s.db.Exec(ctx, query, argsList...); err != nil {
		return errors.Join(ErrDeleteWhere, err)
	}
	return nil
}

func (s *ruleStore) loadAll(ctx context.Context) ([][]string, error) {
	return s.loadWhere(ctx, "", 0)
}

func (s *ruleStore) loadWhere(ctx context.Context, ptype string, startIdx int, args ...string) ([][]string, error) {
	if len(args) > ruleFields-startIdx {
		return nil, fmt.Errorf("%w: %d > %d", ErrArgsTooLong, len(args), ruleFields-startIdx)
	}

	query := fmt.Sprintf("select ptype, %s from %s", columnList(), s.table)

	conditions := make([]string, 0, 1+len(args))
	argsList := make([]any, 0, 1+len(args))
	if lo.IsNotEmpty(ptype) {
		conditions = append(conditions, "ptype = $1")
		argsList = append(argsList, ptype)
	}
	for i, arg := range args {
		if lo.IsEmpty(arg) {
			continue
		}
		conditions = append(conditions, "v"+strconv.Itoa(i+startIdx)+" = $"+strconv.Itoa(len(argsList)+1))
		argsList = append(argsList, arg)
	}
	if len(conditions) > 0 {
		query += " where " + strings.Join(conditions, " and ")
	}

	rows, err := s.db.Query(ctx, query, argsList...)
	if err != nil {
		return nil, errors.Join(ErrSelectWhere, err)
	}
	defer rows.Close()

	var result [][]string
	for rows.Next() {
		row := make([]sql.NullString, ruleFields+1)
		scanArgs := make([]any, len(row))
		for i := range row {
			scanArgs[i] = &row[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Join(ErrScanRow, err)
		}
		converted := make([]string, len(row))
		for i := range row {
			if row[i].Valid {
				converted[i] = row[i].String
			}
		}
		result = append(result, trimEmptyTail(converted))
	}
	return result, nil
}

func (s *ruleStore) replaceAll(ctx context.Context, rules [][]string) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrBeginTx, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, ErrRollbackTx, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("truncate table %s restart identity", s.table)); err != nil {
		return errors.Join(ErrDeleteAll, err)
	}

	if len(rules) > 0 {
		batch := &pgx.Batch{}
		for _, rule := range rules {
			if len(rule) == 0 {
				continue
			}
			normalized, nerr := padRule(rule[1:])
			if nerr != nil {
				return nerr
			}
			batch.Queue(s.insertStmt(), lo.ToAnySlice(prependPtype(rule[0], normalized))...)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err = br.Exec(); err != nil {
				closeErr := br.Close()
				return errors.Join(ErrBatchExec, err, closeErr)
			}
		}
		if err = br.Close(); err != nil {
			return errors.Join(ErrBatchClose, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Join(ErrCommitTx, err)
	}
	return nil
}

func prependPtype(ptype string, rule []string) []string {
	result := make([]string, 1+len(rule))
	result[0] = ptype
	copy(result[1:], rule)
	return result
}

func padRule(rule []string) ([]string, error) {
	if len(rule) > ruleFields {
		return nil, fmt.Errorf("%w: %d > %d", ErrRuleTooLong, len(rule), ruleFields)
	}
	normalized := make([]string, ruleFields)
	copy(normalized, rule)
	return normalized, nil
}

func trimEmptyTail(rule []string) []string {
	last := len(rule) - 1
	for last >= 0 && rule[last] == "" {
		last--
	}
	return rule[:last+1]
}
