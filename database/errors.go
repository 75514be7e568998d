/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package database

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// SQLError classifies driver errors across mysql, postgres and sqlite.
type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoTableErr
	ExistTableErr
	NoColumnErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
)

// sqlErrorRule matches one kind by mysql error number, postgres SQLSTATE or,
// for sqlite and drivers without typed errors, lowercase message fragments.
type sqlErrorRule struct {
	kind    SQLError
	name    string
	mysql   []uint16
	pgCodes []pq.ErrorCode
	texts   []string
}

var sqlErrorRules = []sqlErrorRule{
	{NoTableErr, "no table", []uint16{1146}, []pq.ErrorCode{"42P01"}, []string{"no such table", "undefined table", "sqlstate 42p01"}},
	{NoColumnErr, "no column", []uint16{1054}, []pq.ErrorCode{"42703"}, []string{"no such column", "undefined column", "has no column named", "sqlstate 42703"}},
	{ExistTableErr, "table exists", []uint16{1050}, []pq.ErrorCode{"42P07"}, []string{"already exists", "sqlstate 42p07"}},
	{DuplicateKeyErr, "duplicate key", []uint16{1062}, []pq.ErrorCode{"23505"}, []string{"unique constraint failed", "duplicate key value", "sqlstate 23505"}},
	{NotNullViolationErr, "not null violation", []uint16{1048}, []pq.ErrorCode{"23502"}, []string{"not null constraint failed", "not-null constraint", "sqlstate 23502"}},
	{ForeignKeyViolationErr, "foreign key violation", []uint16{1216, 1217, 1451, 1452}, []pq.ErrorCode{"23503"}, []string{"foreign key constraint failed", "foreign key violation", "sqlstate 23503"}},
	{CheckConstraintViolationErr, "check constraint violation", []uint16{3819}, []pq.ErrorCode{"23514"}, []string{"check constraint failed", "violates check constraint", "sqlstate 23514"}},
}

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no rows"
	case UnknownErr:
		return "unknown"
	}
	for _, rule := range sqlErrorRules {
		if rule.kind == e {
			return rule.name
		}
	}
	return "unknown"
}

// IsSqlError reports whether err comes from the database and which kind it
// is. Errors from a known driver that match no rule are UnknownErr.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		for _, rule := range sqlErrorRules {
			if slices.Contains(rule.mysql, mysqlErr.Number) {
				return true, rule.kind
			}
		}
		return true, UnknownErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		for _, rule := range sqlErrorRules {
			if slices.Contains(rule.pgCodes, pqErr.Code) {
				return true, rule.kind
			}
		}
		return true, UnknownErr
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range sqlErrorRules {
		for _, text := range rule.texts {
			if strings.Contains(msg, text) {
				return true, rule.kind
			}
		}
	}
	return false, UnknownErr
}

// Error is a database error tagged with its kind and the statement that
// produced it. It unwraps to the driver error.
type Error struct {
	Kind SQLError
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err as *Error when it comes from the database. Other
// errors are wrapped with op only. A nil err stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if ok, kind := IsSqlError(err); ok {
		return &Error{Kind: kind, Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf returns the kind recorded by Classify anywhere in err's chain, or
// classifies err directly.
func KindOf(err error) SQLError {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	_, kind := IsSqlError(err)
	return kind
}
