// Package option holds reusable gorm query scopes.
package option

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

// Scope modifies a gorm statement.
type Scope interface {
	Apply(db *gorm.DB) *gorm.DB
}

type scopeFunc func(db *gorm.DB) *gorm.DB

func (f scopeFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination pages a statement ordered by "created_at desc, id desc".
// It fetches one row more than the page size so callers can tell whether
// another page exists. An undecodable token surfaces as a statement error.
func ApplyPagination(page pagination.Pagination) Scope {
	return scopeFunc(func(db *gorm.DB) *gorm.DB {
		stmt := db.Limit(page.Size() + 1)
		if page.PageToken == "" {
			return stmt
		}

		createdAt, id, err := decodeToken(page.PageToken)
		if err != nil {
			_ = stmt.AddError(ErrInvalidPageToken)
			return stmt
		}
		return stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	})
}

func decodeToken(token string) (time.Time, snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return time.Time{}, 0, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return time.Time{}, 0, err
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return time.Time{}, 0, err
	}
	return createdAt.UTC(), id, nil
}
