package memorystore

import (
	"context"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// This file exercises the upsert SQL shape directly against a sqlmock
// expectation set, without touching a real file or running goose. It lives
// in package memorystore (not memorystore_test) so it can hand the store a
// pre-wired *sqlx.DB instead of going through Initialize.
var _ = Describe("EmbeddedFileStore upsert SQL (sqlmock)", func() {
	It("issues one upsert for the context row and one for its embedding", func() {
		db, mock, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		store := &EmbeddedFileStore{
			logger: logging.NewNoop(),
			parser: NewEmbeddingParser(logging.NewNoop()),
			db:     sqlx.NewDb(db, "sqlmock"),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO context_entries").
			WithArgs("mesh:q:doc1_embedding", "q", "doc1_embedding", "[1,0,0]").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO embeddings").
			WithArgs("mesh:q:doc1_embedding", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		Expect(store.Save(context.Background(), "q", "doc1_embedding", "[1,0,0]")).To(Succeed())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("rolls back when the context upsert fails", func() {
		db, mock, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		store := &EmbeddedFileStore{
			logger: logging.NewNoop(),
			parser: NewEmbeddingParser(logging.NewNoop()),
			db:     sqlx.NewDb(db, "sqlmock"),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO context_entries").WillReturnError(errBoom)
		mock.ExpectRollback()

		err = store.Save(context.Background(), "q", "note", "hello")
		Expect(err).To(HaveOccurred())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
