package directory

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestDirectory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Directory Suite")
}

func hashed(password string) string {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(hash)
}

// storeBehavior runs the contract every Store backing must satisfy.
func storeBehavior(newStore func() Store) {
	var (
		store Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = newStore()
		ctx = context.Background()

		err := store.Insert(ctx, &UserRecord{
			LocalID:      "local-1",
			RemoteID:     "remote-1",
			Username:     "alice",
			DisplayName:  "Alice",
			PasswordHash: hashed("correct_password"),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("FindByCredentials", func() {
		It("should return the record for matching credentials", func() {
			record, err := store.FindByCredentials(ctx, "alice", "correct_password")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.LocalID).To(Equal("local-1"))
			Expect(record.RemoteID).To(Equal("remote-1"))
		})

		It("should return the same error for wrong password and unknown user", func() {
			_, wrongPassErr := store.FindByCredentials(ctx, "alice", "wrong")
			_, unknownErr := store.FindByCredentials(ctx, "nobody", "whatever")

			Expect(wrongPassErr).To(MatchError(ErrNotFound))
			Expect(unknownErr).To(MatchError(ErrNotFound))
		})
	})

	Describe("FindByUsername", func() {
		It("should find an existing user", func() {
			record, err := store.FindByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.DisplayName).To(Equal("Alice"))
		})

		It("should return ErrNotFound for a missing user", func() {
			_, err := store.FindByUsername(ctx, "nobody")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("FindByRemoteID", func() {
		It("should find a record by its remote identity", func() {
			record, err := store.FindByRemoteID(ctx, "remote-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Username).To(Equal("alice"))
		})

		It("should return ErrNotFound when no record carries the id", func() {
			_, err := store.FindByRemoteID(ctx, "remote-999")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Insert", func() {
		It("should reject a duplicate local id with ErrDuplicate", func() {
			err := store.Insert(ctx, &UserRecord{
				LocalID:      "local-1",
				Username:     "other",
				PasswordHash: hashed("x"),
			})
			Expect(err).To(MatchError(ErrDuplicate))
		})

		It("should reject a duplicate username with ErrDuplicate", func() {
			err := store.Insert(ctx, &UserRecord{
				LocalID:      "local-2",
				Username:     "alice",
				PasswordHash: hashed("x"),
			})
			Expect(err).To(MatchError(ErrDuplicate))
		})
	})

	Describe("Update", func() {
		It("should apply only the provided fields", func() {
			name := "Alice Cooper"
			err := store.Update(ctx, "local-1", UpdateFields{DisplayName: &name})
			Expect(err).NotTo(HaveOccurred())

			record, err := store.FindByLocalID(ctx, "local-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.DisplayName).To(Equal("Alice Cooper"))
			Expect(record.Username).To(Equal("alice"))
		})

		It("should return ErrNotFound for an unknown id", func() {
			name := "Ghost"
			err := store.Update(ctx, "local-999", UpdateFields{DisplayName: &name})
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Delete", func() {
		It("should remove the record and report NotFound afterwards", func() {
			Expect(store.Delete(ctx, "local-1")).To(Succeed())
			Expect(store.Delete(ctx, "local-1")).To(MatchError(ErrNotFound))

			_, err := store.FindByLocalID(ctx, "local-1")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListAll", func() {
		It("should list every record", func() {
			err := store.Insert(ctx, &UserRecord{
				LocalID:      "local-2",
				RemoteID:     "remote-2",
				Username:     "bob",
				PasswordHash: hashed("x"),
			})
			Expect(err).NotTo(HaveOccurred())

			records, err := store.ListAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})
	})
}

var _ = Describe("MemoryStore", func() {
	storeBehavior(func() Store { return NewMemoryStore() })

	It("should return copies, not references into the store", func() {
		store := NewMemoryStore()
		ctx := context.Background()

		err := store.Insert(ctx, &UserRecord{
			LocalID:      "local-1",
			Username:     "alice",
			PasswordHash: hashed("pw"),
		})
		Expect(err).NotTo(HaveOccurred())

		record, err := store.FindByLocalID(ctx, "local-1")
		Expect(err).NotTo(HaveOccurred())
		record.Username = "mutated"

		fresh, err := store.FindByLocalID(ctx, "local-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Username).To(Equal("alice"))
	})
})

var _ = Describe("GormStore", func() {
	var db *gorm.DB

	storeBehavior(func() Store {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&UserRecord{})
		Expect(err).NotTo(HaveOccurred())

		return NewGormStore(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})
})
