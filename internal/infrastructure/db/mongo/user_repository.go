package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const collectionUsers = "users"

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type mongoUser struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	Username             string             `bson:"username"`
	Email                string             `bson:"email"`
	PasswordHash         string             `bson:"password_hash"`
	FirstName            string             `bson:"first_name,omitempty"`
	LastName             string             `bson:"last_name,omitempty"`
	StudentID            string             `bson:"student_id,omitempty"`
	Phone                string             `bson:"phone,omitempty"`
	Department           string             `bson:"department,omitempty"`
	Program              string             `bson:"program,omitempty"`
	YearOfStudy          int                `bson:"year_of_study,omitempty"`
	Active               bool               `bson:"active"`
	EmailVerified        bool               `bson:"email_verified"`
	AuthenticationSource string             `bson:"authentication_source"`
	Roles                []string           `bson:"roles"`
	LastLoginAt          *time.Time         `bson:"last_login_at,omitempty"`
	CreatedAt            time.Time          `bson:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at"`
}

func toMongoUser(u *domain.User) mongoUser {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return mongoUser{
		Username:             strings.ToLower(strings.TrimSpace(u.Username)),
		Email:                strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash:         u.PasswordHash,
		FirstName:            u.FirstName,
		LastName:             u.LastName,
		StudentID:            u.StudentID,
		Phone:                u.Phone,
		Department:           u.Department,
		Program:              u.Program,
		YearOfStudy:          u.YearOfStudy,
		Active:               u.Active,
		EmailVerified:        u.EmailVerified,
		AuthenticationSource: string(u.AuthenticationSource),
		Roles:                roles,
		LastLoginAt:          u.LastLoginAt,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func (m mongoUser) toDomain() *domain.User {
	roles := make([]domain.RoleName, 0, len(m.Roles))
	for _, r := range m.Roles {
		roles = append(roles, domain.RoleName(r))
	}
	return &domain.User{
		ID:                   m.ID.Hex(),
		Username:             m.Username,
		Email:                m.Email,
		PasswordHash:         m.PasswordHash,
		FirstName:            m.FirstName,
		LastName:             m.LastName,
		StudentID:            m.StudentID,
		Phone:                m.Phone,
		Department:           m.Department,
		Program:              m.Program,
		YearOfStudy:          m.YearOfStudy,
		Active:               m.Active,
		EmailVerified:        m.EmailVerified,
		AuthenticationSource: domain.AuthenticationSource(m.AuthenticationSource),
		Roles:                roles,
		LastLoginAt:          m.LastLoginAt,
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": strings.ToLower(strings.TrimSpace(username))})
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

// Create inserts user. A unique index violation on email or username is
// reported as domain.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(user)
	doc.ID = primitive.NewObjectID()
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	id, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(user)
	doc.ID = id
	set := bson.M{
		"username":              doc.Username,
		"email":                 doc.Email,
		"password_hash":         doc.PasswordHash,
		"first_name":            doc.FirstName,
		"last_name":             doc.LastName,
		"student_id":            doc.StudentID,
		"phone":                 doc.Phone,
		"department":            doc.Department,
		"program":               doc.Program,
		"year_of_study":         doc.YearOfStudy,
		"active":                doc.Active,
		"email_verified":        doc.EmailVerified,
		"authentication_source": doc.AuthenticationSource,
		"roles":                 doc.Roles,
		"last_login_at":         doc.LastLoginAt,
		"updated_at":            doc.UpdatedAt,
	}

	var updated mongoUser
	err = r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, domain.ErrUserNotFound
	case mongo.IsDuplicateKeyError(err):
		return nil, domain.ErrUserExists
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated.toDomain(), nil
}

// EnsureIndexes creates the unique indexes the reconciler relies on to detect
// concurrent provisioning.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_email")},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_username")},
		{Keys: bson.D{{Key: "authentication_source", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
