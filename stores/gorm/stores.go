//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	sg "github.com/panyam/secretgate"
)

// Open connects to a "sqlite" or "postgres" database with driver errors
// translated to gorm's (so unique violations surface as gorm.ErrDuplicatedKey)
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

// AutoMigrate runs database migrations for all secretgate tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SecretModel{},
		&SessionModel{},
	)
}

// UserStore implements sg.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func withSecrets(db *gorm.DB) *gorm.DB {
	return db.Preload("Secrets", func(db *gorm.DB) *gorm.DB {
		return db.Order("secrets.id")
	})
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*UserModel, error) {
	var model UserModel
	err := withSecrets(s.db.WithContext(ctx)).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sg.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (s *UserStore) CreateLocalUser(ctx context.Context, username string, passwordHash, salt []byte) (*sg.User, error) {
	model := &UserModel{
		ID:           sg.NewUserID(),
		Username:     &username,
		PasswordHash: passwordHash,
		Salt:         salt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, sg.ErrDuplicateUsername
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*sg.User, error) {
	model, err := s.first(ctx, "id = ?", userId)
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*sg.User, error) {
	model, err := s.first(ctx, "username = ?", username)
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

// FindOrCreateByProvider inserts a user for the subject id unless one exists
// and then reads back whichever row owns it. The unique index on the provider
// column arbitrates concurrent first logins.
func (s *UserStore) FindOrCreateByProvider(ctx context.Context, provider sg.Provider, subjectID string) (*sg.User, bool, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, false, err
	}

	model := &UserModel{ID: sg.NewUserID()}
	model.setSubjectID(provider, subjectID)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: col}}, DoNothing: true}).
		Create(model)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected == 1

	existing, err := s.first(ctx, col+" = ?", subjectID)
	if err != nil {
		if errors.Is(err, sg.ErrUserNotFound) {
			// the row we conflicted with vanished in between
			return nil, false, fmt.Errorf("%w: %s user disappeared", sg.ErrPersistenceConflict, provider)
		}
		return nil, false, err
	}
	return existing.ToUser(), created, nil
}

func (s *UserStore) LinkProvider(ctx context.Context, userId string, provider sg.Provider, subjectID string) (*sg.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	current, err := s.first(ctx, "id = ?", userId)
	if err != nil {
		return nil, err
	}
	if linked := current.ToUser().SubjectID(provider); linked != "" {
		if linked == subjectID {
			return current.ToUser(), nil
		}
		return nil, sg.ErrAlreadyLinked
	}

	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND "+col+" IS NULL", userId).
		Update(col, subjectID)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return nil, sg.ErrAlreadyLinked
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, sg.ErrAlreadyLinked
	}
	return s.GetUserById(ctx, userId)
}

// AppendSecret inserts the secret row in the same transaction that checks
// the user exists
func (s *UserStore) AppendSecret(ctx context.Context, userId string, content string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&UserModel{}).Where("id = ?", userId).UpdateColumn("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return sg.ErrUserNotFound
		}
		return tx.Create(&SecretModel{UserID: userId, Content: content}).Error
	})
}

func (s *UserStore) ListUsersWithSecrets(ctx context.Context) ([]*sg.User, error) {
	var models []UserModel
	err := withSecrets(s.db.WithContext(ctx)).
		Where("EXISTS (SELECT 1 FROM secrets WHERE secrets.user_id = users.id)").
		Order("users.created_at, users.id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*sg.User, len(models))
	for i := range models {
		out[i] = models[i].ToUser()
	}
	return out, nil
}
