package directory

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// GormStore backs the directory with a relational database through gorm.
// Production runs it over postgres; tests run it over sqlite.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByCredentials(ctx context.Context, username, password string) (*UserRecord, error) {
	rec, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		// same error as an unknown username, by contract
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var rec UserRecord
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &rec, nil
}

func (s *GormStore) FindByLocalID(ctx context.Context, localID string) (*UserRecord, error) {
	var rec UserRecord
	err := s.db.WithContext(ctx).Where("local_id = ?", localID).First(&rec).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &rec, nil
}

func (s *GormStore) FindByRemoteID(ctx context.Context, remoteID string) (*UserRecord, error) {
	var rec UserRecord
	err := s.db.WithContext(ctx).Where("remote_id = ?", remoteID).First(&rec).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &rec, nil
}

func (s *GormStore) Insert(ctx context.Context, record *UserRecord) error {
	err := s.db.WithContext(ctx).Create(record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, localID string, fields UpdateFields) error {
	updates := map[string]interface{}{}
	if fields.DisplayName != nil {
		updates["display_name"] = *fields.DisplayName
	}
	if fields.Username != nil {
		updates["username"] = *fields.Username
	}
	if fields.PasswordHash != nil {
		updates["password_hash"] = *fields.PasswordHash
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&UserRecord{}).Where("local_id = ?", localID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, localID string) error {
	res := s.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&UserRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAll(ctx context.Context) ([]UserRecord, error) {
	var recs []UserRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
