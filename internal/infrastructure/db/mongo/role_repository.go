package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const collectionRoles = "roles"

type RoleRepository struct {
	col *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{col: db.Collection(collectionRoles)}
}

type mongoRole struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Permissions []string           `bson:"permissions"`
}

func (m mongoRole) toDomain() *domain.Role {
	perms := make([]domain.Permission, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		perms = append(perms, domain.Permission(p))
	}
	return &domain.Role{
		ID:          m.ID.Hex(),
		Name:        domain.RoleName(m.Name),
		Description: m.Description,
		Permissions: perms,
	}
}

func (r *RoleRepository) FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mr mongoRole
	if err := r.col.FindOne(ctx, bson.M{"name": string(name)}).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return mr.toDomain(), nil
}

// GetOrCreate upserts with $setOnInsert so an existing role is returned as is
// and racing creators converge on a single document.
func (r *RoleRepository) GetOrCreate(ctx context.Context, name domain.RoleName, description string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	seed := domain.NewRole(name, description)
	perms := make([]string, 0, len(seed.Permissions))
	for _, p := range seed.Permissions {
		perms = append(perms, string(p))
	}

	var mr mongoRole
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"name": string(name)},
		bson.M{"$setOnInsert": bson.M{
			"name":        string(name),
			"description": seed.Description,
			"permissions": perms,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&mr)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced; the loser reads what the winner wrote.
		return r.FindByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get or create role %s: %w", name, err)
	}
	return mr.toDomain(), nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRole
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	out := make([]*domain.Role, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *RoleRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_name"),
	})
	return err
}
