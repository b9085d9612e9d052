package users

import (
	"context"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/repo"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes user, contact and confirmation token persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindWithContacts(ctx context.Context, id int64) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Activate(ctx context.Context, id int64) error

	CreateConfirmationToken(ctx context.Context, userID int64, key string) error
	FindConfirmationToken(ctx context.Context, email, key string) (*models.EmailConfirmationToken, error)
	DeleteConfirmationTokens(ctx context.Context, userID int64) error
	DeleteConfirmationTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ListContacts(ctx context.Context, userID int64) ([]models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	FindContact(ctx context.Context, contactID, userID int64) (*models.Contact, error)
	SaveContact(ctx context.Context, contact *models.Contact) error
	DeleteContacts(ctx context.Context, userID int64, ids []int64) (int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

// Create inserts a new user and returns the persisted model.
func (r *repositoryImpl) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Omit("Contacts").Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail returns nil when no user has the address.
func (r *repositoryImpl) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return repo.TakeOne[models.User](r.DB(ctx).Where("email = ?", NormalizeEmail(email)))
}

// FindByID returns nil when the user does not exist.
func (r *repositoryImpl) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return repo.TakeOne[models.User](r.DB(ctx).Where("id = ?", id))
}

func (r *repositoryImpl) FindWithContacts(ctx context.Context, id int64) (*models.User, error) {
	return repo.TakeOne[models.User](r.DB(ctx).
		Preload("Contacts", func(db *gorm.DB) *gorm.DB { return db.Order("contacts.id") }).
		Where("id = ?", id))
}

func (r *repositoryImpl) Save(ctx context.Context, user *models.User) error {
	return r.DB(ctx).Omit("Contacts").Save(user).Error
}

func (r *repositoryImpl) Activate(ctx context.Context, id int64) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": true, "updated_at": time.Now().UTC()}).Error
}

func (r *repositoryImpl) CreateConfirmationToken(ctx context.Context, userID int64, key string) error {
	token := &models.EmailConfirmationToken{UserID: userID, Key: key}
	return r.DB(ctx).Omit("User").Create(token).Error
}

// FindConfirmationToken matches the key against the owner's email; nil when either is wrong.
func (r *repositoryImpl) FindConfirmationToken(ctx context.Context, email, key string) (*models.EmailConfirmationToken, error) {
	owner := r.DB(ctx).Model(&models.User{}).Select("id").Where("email = ?", NormalizeEmail(email))
	return repo.TakeOne[models.EmailConfirmationToken](r.DB(ctx).Where("key = ? AND user_id IN (?)", key, owner))
}

func (r *repositoryImpl) DeleteConfirmationTokens(ctx context.Context, userID int64) error {
	return r.DB(ctx).Where("user_id = ?", userID).Delete(&models.EmailConfirmationToken{}).Error
}

// DeleteConfirmationTokensBefore purges tokens issued before cutoff.
func (r *repositoryImpl) DeleteConfirmationTokensBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("created_at < ?", cutoff).Delete(&models.EmailConfirmationToken{})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) ListContacts(ctx context.Context, userID int64) ([]models.Contact, error) {
	var contacts []models.Contact
	err := r.DB(ctx).Where("user_id = ?", userID).Order("id").Find(&contacts).Error
	return contacts, err
}

func (r *repositoryImpl) CreateContact(ctx context.Context, contact *models.Contact) error {
	return r.DB(ctx).Create(contact).Error
}

// FindContact returns nil unless the contact exists and belongs to userID.
func (r *repositoryImpl) FindContact(ctx context.Context, contactID, userID int64) (*models.Contact, error) {
	return repo.TakeOne[models.Contact](r.DB(ctx).Where("id = ? AND user_id = ?", contactID, userID))
}

func (r *repositoryImpl) SaveContact(ctx context.Context, contact *models.Contact) error {
	return r.DB(ctx).Save(contact).Error
}

// DeleteContacts removes the listed contacts owned by userID and reports how many went.
func (r *repositoryImpl) DeleteContacts(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).Where("user_id = ? AND id IN ?", userID, ids).Delete(&models.Contact{})
	return res.RowsAffected, res.Error
}
