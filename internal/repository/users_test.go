package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// ============================================
// 用户仓库测试
// ============================================

func newUserRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"email", "user_type", "full_name", "password_hash", "dob",
		"country_code", "contact_number", "location", "bio",
		"volunteer_credits", "created_at",
	})
}

func addUserRow(rows *sqlmock.Rows, email string, role domain.Role) *sqlmock.Rows {
	return rows.AddRow(
		email, role, "Some Name", "hash", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC),
		"+91", "9999999999", "10.0,76.0", "", 0, time.Now(),
	)
}

func TestUsersRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO users").
		WithArgs("e1@example.com", domain.RoleElder, "Elder One", "hash",
			sqlmock.AnyArg(), "+91", "9999999999", "10.0,76.0", "", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), &domain.User{
		Email:         "e1@example.com",
		Role:          domain.RoleElder,
		FullName:      "Elder One",
		PasswordHash:  "hash",
		DOB:           time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC),
		CountryCode:   "+91",
		ContactNumber: "9999999999",
		Location:      "10.0,76.0",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_CreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	err = repo.Create(context.Background(), &domain.User{Email: "dup@example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUsersRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("v1@example.com").
		WillReturnRows(addUserRow(newUserRows(), "v1@example.com", domain.RoleVolunteer))

	u, err := repo.GetByEmail(context.Background(), "v1@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleVolunteer, u.Role)
}

func TestUsersRepository_GetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnRows(newUserRows())

	_, err = repo.GetByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUsersRepository_ListUnassignedVolunteers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	rows := newUserRows()
	addUserRow(rows, "v1@example.com", domain.RoleVolunteer)
	addUserRow(rows, "v2@example.com", domain.RoleVolunteer)
	mock.ExpectQuery("SELECT (.+) FROM users u").WillReturnRows(rows)

	volunteers, err := repo.ListUnassignedVolunteers(context.Background())
	require.NoError(t, err)
	require.Len(t, volunteers, 2)
	assert.Equal(t, "v1@example.com", volunteers[0].Email)
}

func TestUsersRepository_ListCoordinatorEmails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT email FROM users WHERE user_type").
		WithArgs(domain.RoleCoordinator).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("admin@example.com"))

	emails, err := repo.ListCoordinatorEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com"}, emails)
}

func TestUsersRepository_AddCredits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectExec("UPDATE users SET volunteer_credits").
		WithArgs("v1@example.com", 50).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddCredits(context.Background(), "v1@example.com", 50))

	mock.ExpectExec("UPDATE users SET volunteer_credits").
		WithArgs("missing@example.com", 50).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.AddCredits(context.Background(), "missing@example.com", 50), domain.ErrNotFound)
}

func TestUsersRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db, zap.NewNop())

	mock.ExpectExec("DELETE FROM users WHERE email").
		WithArgs("e1@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "e1@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
