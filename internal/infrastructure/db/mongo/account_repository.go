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

	"github.com/99minutos/account-service/internal/core/domain"
)

const (
	collectionAccounts = "accounts"

	indexEmail    = "uniq_email"
	indexNickname = "uniq_nickname"
	indexCreated  = "created_at_id"
)

type AccountRepository struct {
	col *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{col: db.Collection(collectionAccounts)}
}

type accountDocument struct {
	ID                  string     `bson:"_id"`
	Nickname            string     `bson:"nickname"`
	Email               string     `bson:"email"`
	PasswordHash        string     `bson:"password_hash"`
	FirstName           string     `bson:"first_name,omitempty"`
	LastName            string     `bson:"last_name,omitempty"`
	Bio                 string     `bson:"bio,omitempty"`
	ProfilePictureURL   string     `bson:"profile_picture_url,omitempty"`
	Role                string     `bson:"role"`
	EmailVerified       bool       `bson:"email_verified"`
	VerificationToken   string     `bson:"verification_token,omitempty"`
	IsLocked            bool       `bson:"is_locked"`
	FailedLoginAttempts int        `bson:"failed_login_attempts"`
	LastLoginAt         *time.Time `bson:"last_login_at,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

func toDocument(a *domain.Account) accountDocument {
	return accountDocument{
		ID:                  a.ID,
		Nickname:            a.Nickname,
		Email:               a.Email,
		PasswordHash:        a.PasswordHash,
		FirstName:           a.FirstName,
		LastName:            a.LastName,
		Bio:                 a.Bio,
		ProfilePictureURL:   a.ProfilePictureURL,
		Role:                string(a.Role),
		EmailVerified:       a.EmailVerified,
		VerificationToken:   a.VerificationToken,
		IsLocked:            a.IsLocked,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LastLoginAt:         a.LastLoginAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (d accountDocument) toDomain() *domain.Account {
	a := &domain.Account{
		ID:                  d.ID,
		Nickname:            d.Nickname,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Bio:                 d.Bio,
		ProfilePictureURL:   d.ProfilePictureURL,
		Role:                domain.Role(d.Role),
		EmailVerified:       d.EmailVerified,
		VerificationToken:   d.VerificationToken,
		IsLocked:            d.IsLocked,
		FailedLoginAttempts: d.FailedLoginAttempts,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
	if d.LastLoginAt != nil {
		ts := d.LastLoginAt.UTC()
		a.LastLoginAt = &ts
	}
	return a
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *AccountRepository) FindByNickname(ctx context.Context, nickname string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"nickname": nickname})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc accountDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

// Insert stores a new account. Unique index violations map to the matching
// conflict error.
func (r *AccountRepository) Insert(ctx context.Context, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toDocument(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	set := bson.D{{Key: "updated_at", Value: patch.UpdatedAt}}
	unset := bson.D{}

	setIf := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}
	setIf("nickname", patch.Nickname)
	setIf("email", patch.Email)
	setIf("password_hash", patch.PasswordHash)
	setIf("first_name", patch.FirstName)
	setIf("last_name", patch.LastName)
	setIf("bio", patch.Bio)
	setIf("profile_picture_url", patch.ProfilePictureURL)
	if patch.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*patch.Role)})
	}
	if patch.EmailVerified != nil {
		set = append(set, bson.E{Key: "email_verified", Value: *patch.EmailVerified})
	}
	if patch.VerificationToken != nil {
		if *patch.VerificationToken == "" {
			unset = append(unset, bson.E{Key: "verification_token", Value: ""})
		} else {
			set = append(set, bson.E{Key: "verification_token", Value: *patch.VerificationToken})
		}
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	account, err := r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

func (r *AccountRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// List returns a page ordered by (created_at, _id) so concurrent inserts
// cannot reorder earlier pages.
func (r *AccountRepository) List(ctx context.Context, skip, limit int) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	accounts := make([]*domain.Account, 0, len(docs))
	for _, d := range docs {
		accounts = append(accounts, d.toDomain())
	}
	return accounts, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// RecordFailedLogin increments the counter and derives is_locked from the
// new value in a single pipeline update, so concurrent failures can never
// skip the threshold.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, at time.Time) (*domain.Account, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "failed_login_attempts", Value: bson.D{{Key: "$add", Value: bson.A{"$failed_login_attempts", 1}}}},
			{Key: "updated_at", Value: at},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "is_locked", Value: bson.D{{Key: "$gte", Value: bson.A{"$failed_login_attempts", threshold}}}},
		}}},
	}

	account, err := r.findOneAndUpdate(ctx, bson.M{"_id": id, "is_locked": false}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.guardFailure(ctx, id, domain.ErrAccountLocked)
	}
	return account, err
}

func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) (*domain.Account, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "failed_login_attempts", Value: 0},
		{Key: "last_login_at", Value: at},
		{Key: "updated_at", Value: at},
	}}}

	account, err := r.findOneAndUpdate(ctx, bson.M{"_id": id, "is_locked": false}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.guardFailure(ctx, id, domain.ErrAccountLocked)
	}
	return account, err
}

func (r *AccountRepository) Unlock(ctx context.Context, id string, at time.Time) (*domain.Account, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "is_locked", Value: false},
		{Key: "failed_login_attempts", Value: 0},
		{Key: "updated_at", Value: at},
	}}}

	account, err := r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

// ConsumeVerificationToken is a compare-and-clear on verification_token.
func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, id, token string, at time.Time) (*domain.Account, error) {
	filter := bson.M{"_id": id, "verification_token": token, "email_verified": false}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email_verified", Value: true},
			{Key: "updated_at", Value: at},
		}},
		{Key: "$unset", Value: bson.D{{Key: "verification_token", Value: ""}}},
	}

	account, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.guardFailure(ctx, id, domain.ErrInvalidVerificationToken)
	}
	return account, err
}

// EnsureIndexes creates the unique and ordering indexes on the accounts collection.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(indexEmail)},
		{Keys: bson.D{{Key: "nickname", Value: 1}}, Options: options.Index().SetUnique(true).SetName(indexNickname)},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}, Options: options.Index().SetName(indexCreated)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// Ping reports whether the backing deployment is reachable.
func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

func (r *AccountRepository) findOneAndUpdate(ctx context.Context, filter bson.M, update any) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateError(err)
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	return doc.toDomain(), nil
}

// guardFailure resolves a guarded update that matched nothing: the account
// either does not exist or failed the guard.
func (r *AccountRepository) guardFailure(ctx context.Context, id string, guardErr error) error {
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return guardErr
}

// duplicateError maps an E11000 error to the conflict of the unique index it
// names. Only the "index: <name> " part of the server message is matched; the
// duplicated key value may contain anything.
func duplicateError(err error) error {
	for _, msg := range duplicateMessages(err) {
		switch {
		case strings.Contains(msg, "index: "+indexNickname+" "):
			return domain.ErrNicknameTaken
		case strings.Contains(msg, "index: "+indexEmail+" "):
			return domain.ErrEmailTaken
		}
	}
	return fmt.Errorf("duplicate key on unexpected index: %w", err)
}

func duplicateMessages(err error) []string {
	var msgs []string
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.HasErrorCode(11000) {
				msgs = append(msgs, e.Message)
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.HasErrorCode(11000) {
		msgs = append(msgs, ce.Message)
	}
	return msgs
}
