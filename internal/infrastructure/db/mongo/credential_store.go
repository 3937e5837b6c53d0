package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/classroll/records-api/internal/core/domain"
)

const (
	collectionUsers       = "users"
	collectionRoles       = "roles"
	collectionPermissions = "permissions"
	collectionCounters    = "counters"

	indexUsername = "uniq_username"
	indexEmail    = "uniq_email"
	indexRoleName = "uniq_role_name"
)

// CredentialStore keeps users, roles and permissions in MongoDB. Numeric ids
// come from a per-collection sequence in the counters collection.
type CredentialStore struct {
	users       *mongo.Collection
	roles       *mongo.Collection
	permissions *mongo.Collection
	counters    *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{
		users:       db.Collection(collectionUsers),
		roles:       db.Collection(collectionRoles),
		permissions: db.Collection(collectionPermissions),
		counters:    db.Collection(collectionCounters),
	}
}

type userDoc struct {
	ID           int64     `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	RoleID       int64     `bson:"role_id"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type roleDoc struct {
	ID          int64    `bson:"_id"`
	Name        string   `bson:"name"`
	Description string   `bson:"description"`
	Permissions []string `bson:"permissions"`
}

type permissionDoc struct {
	Name        string `bson:"_id"`
	Description string `bson:"description"`
}

// EnsureIndexes creates the uniqueness constraints the store relies on.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName(indexUsername).SetUnique(true)},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(indexEmail).SetUnique(true).SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}

	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName(indexRoleName).SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("role indexes: %w", err)
	}
	return nil
}

func (s *CredentialStore) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *CredentialStore) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *CredentialStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *CredentialStore) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) RoleOf(ctx context.Context, user *domain.User) (*domain.Role, error) {
	return s.findRole(ctx, bson.M{"_id": user.RoleID})
}

func (s *CredentialStore) PermissionsOf(ctx context.Context, role *domain.Role) ([]string, error) {
	r, err := s.findRole(ctx, bson.M{"_id": role.ID})
	if err != nil {
		return nil, err
	}
	return r.Permissions, nil
}

func (s *CredentialStore) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return s.findRole(ctx, bson.M{"name": name})
}

func (s *CredentialStore) findRole(ctx context.Context, filter bson.M) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc roleDoc
	if err := s.roles.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	out := make([]*domain.User, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (s *CredentialStore) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.roles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	out := make([]*domain.Role, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (s *CredentialStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	id, err := s.nextID(ctx, collectionUsers)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := newUserDoc(user)
	doc.ID = id
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, userWriteError("insert user", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) UpdateUser(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := newUserDoc(user)
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"username":      doc.Username,
		"email":         doc.Email,
		"password_hash": doc.PasswordHash,
		"role_id":       doc.RoleID,
		"updated_at":    doc.UpdatedAt,
	}})
	if err != nil {
		return userWriteError("update user", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsurePermission inserts p unless a permission with that name exists.
func (s *CredentialStore) EnsurePermission(ctx context.Context, p domain.Permission) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.permissions.UpdateOne(ctx,
		bson.M{"_id": p.Name},
		bson.M{"$setOnInsert": permissionDoc{Name: p.Name, Description: p.Description}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure permission: %w", err)
	}
	return nil
}

// EnsureRole creates role when missing and adds any of its permissions the
// stored role lacks. Grants already present are left alone.
func (s *CredentialStore) EnsureRole(ctx context.Context, role domain.Role) (*domain.Role, error) {
	existing, err := s.FindRoleByName(ctx, role.Name)
	switch {
	case errors.Is(err, domain.ErrRoleNotFound):
		id, err := s.nextID(ctx, collectionRoles)
		if err != nil {
			return nil, err
		}
		doc := roleDoc{ID: id, Name: role.Name, Description: role.Description, Permissions: role.Permissions}
		if doc.Permissions == nil {
			doc.Permissions = []string{}
		}

		insertCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		if _, err := s.roles.InsertOne(insertCtx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return s.FindRoleByName(ctx, role.Name)
			}
			return nil, fmt.Errorf("insert role: %w", err)
		}
		return doc.toDomain(), nil
	case err != nil:
		return nil, err
	}

	if len(role.Permissions) == 0 {
		return existing, nil
	}

	updateCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err = s.roles.UpdateOne(updateCtx,
		bson.M{"_id": existing.ID},
		bson.M{"$addToSet": bson.M{"permissions": bson.M{"$each": role.Permissions}}},
	)
	if err != nil {
		return nil, fmt.Errorf("grant role permissions: %w", err)
	}
	return s.FindRoleByName(ctx, role.Name)
}

type counterDoc struct {
	Seq int64 `bson:"seq"`
}

func (s *CredentialStore) nextID(ctx context.Context, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return c.Seq, nil
}

func userWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), indexEmail) {
			return domain.ErrEmailExists
		}
		return domain.ErrUserExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		RoleID:       u.RoleID,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		RoleID:       d.RoleID,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d *roleDoc) toDomain() *domain.Role {
	perms := d.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &domain.Role{ID: d.ID, Name: d.Name, Description: d.Description, Permissions: perms}
}
