package repository_test

import (
	"context"
	"regexp"
	"testing"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestShippingAddressCreate_ConcurrentDefaultIsDuplicate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormShippingAddressRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "shipping_addresses"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_shipping_addresses_user_default"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.ShippingAddress{ID: uuid.New(), UserID: uuid.New(), IsDefault: true})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestFindDefaultByUser_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormShippingAddressRepository(gormDB)
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "shipping_addresses"`)).
		WithArgs(userID, true, 1).
		WillReturnRows(sqlmock.NewRows([]string{}))

	addr, err := repo.FindDefaultByUser(context.Background(), userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, addr)
}

func TestSubscriptionPaymentUpdateLatestStatus_NoRows(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormSubscriptionPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "subscription_payments"`)).
		WithArgs("sub_9", 1).
		WillReturnRows(sqlmock.NewRows([]string{}))

	err := repo.UpdateLatestStatus(context.Background(), "sub_9", models.PaymentStatusFailed)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubscriptionPaymentUpdateLatestStatus_UpdatesNewestRow(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormSubscriptionPaymentRepository(gormDB)
	latestID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "subscription_payments" WHERE subscription_id = $1 ORDER BY payment_date DESC`)).
		WithArgs("sub_9", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscription_id", "status"}).AddRow(latestID, "sub_9", models.PaymentStatusSucceeded))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "subscription_payments" SET "status"=$1 WHERE id = $2`)).
		WithArgs(models.PaymentStatusCanceled, latestID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateLatestStatus(context.Background(), "sub_9", models.PaymentStatusCanceled)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
