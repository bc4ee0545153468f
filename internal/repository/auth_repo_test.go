package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"meater_sync/internal/models"
	"meater_sync/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	insertUserRe = regexp.QuoteMeta(`INSERT INTO users (username, password_hash) VALUES (?, ?)`)
	userByNameRe = regexp.QuoteMeta(`SELECT id, username, password_hash FROM users WHERE username = ? LIMIT 1`)
)

func TestUserSQLite_Create(t *testing.T) {
	cases := []struct {
		name    string
		expect  func(m sqlmock.Sqlmock)
		wantID  int
		wantErr error
		errText string
	}{
		{
			name: "inserted",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertUserRe).WithArgs("pitmaster", "h1").
					WillReturnResult(sqlmock.NewResult(3, 1))
			},
			wantID: 3,
		},
		{
			name: "duplicate",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertUserRe).WithArgs("pitmaster", "h1").
					WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"))
			},
			wantErr: repository.ErrUsernameTaken,
		},
		{
			name: "exec failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertUserRe).WithArgs("pitmaster", "h1").
					WillReturnError(errors.New("disk I/O error"))
			},
			errText: "insert user",
		},
		{
			name: "no last id",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertUserRe).WithArgs("pitmaster", "h1").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("unsupported")))
			},
			errText: "last insert id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			tc.expect(mock)

			id, err := repository.NewUserSQLite(db).Create(context.Background(), "pitmaster", "h1")
			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
			case tc.errText != "":
				require.ErrorContains(t, err, tc.errText)
			default:
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantID, id)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserSQLite_GetByUsername_Found(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(userByNameRe).WithArgs("pitmaster").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(7, "pitmaster", "h1"))

	u, err := repository.NewUserSQLite(db).GetByUsername(context.Background(), "pitmaster")
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: 7, Username: "pitmaster", PasswordHash: "h1"}, u)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserSQLite_GetByUsername_MissingIsNil(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(userByNameRe).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}))

	u, err := repository.NewUserSQLite(db).GetByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserSQLite_GetByUsername_QueryError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(userByNameRe).WithArgs("pitmaster").WillReturnError(errors.New("db locked"))

	u, err := repository.NewUserSQLite(db).GetByUsername(context.Background(), "pitmaster")
	require.ErrorContains(t, err, "select user")
	assert.Nil(t, u)
}
