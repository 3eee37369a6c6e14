package tokens

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/initializers"
	"github.com/swapmybytes/backend/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, initializers.Migrate(db))
	return db
}

func newTestAuthority(t *testing.T, db *gorm.DB, ttl time.Duration) *Authority {
	t.Helper()
	return NewAuthority(db, ttl, 10, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func seedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedFile(t *testing.T, db *gorm.DB, name string) *models.File {
	t.Helper()
	file := models.File{
		OriginalName: name,
		MimeType:     "application/octet-stream",
		StoragePath:  "/tmp/" + name,
		Size:         42,
		Hash:         "deadbeef",
	}
	require.NoError(t, db.Create(&file).Error)
	return &file
}

func grantOwnership(t *testing.T, db *gorm.DB, user *models.User, file *models.File) {
	t.Helper()
	require.NoError(t, db.Exec(
		"INSERT INTO user_files (user_id, file_id) VALUES (?, ?)",
		user.ID, file.ID,
	).Error)
}

func TestAuthority_IssueAndRedeem(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)

	user := seedUser(t, db, "alice")
	file := seedFile(t, db, "photo.png")
	grantOwnership(t, db, user, file)
	req.NoError(db.Model(user).Update("has_contributed", true).Error)

	token, err := a.Issue(file.ID)
	req.NoError(err)
	req.NotEmpty(token)

	got, err := a.Redeem(token, user)
	req.NoError(err)
	req.Equal(file.ID, got.ID)
	req.Equal("photo.png", got.OriginalName)
	req.Equal("application/octet-stream", got.MimeType)

	// Redemption closes the swap cycle.
	var fresh models.User
	req.NoError(db.First(&fresh, "id = ?", user.ID).Error)
	req.False(fresh.HasContributed)

	// Second redemption of the same token is terminal.
	_, err = a.Redeem(token, user)
	req.True(httperr.IsKind(err, httperr.KindForbidden))
	req.Contains(err.(*httperr.Error).Message, "already used")
}

func TestAuthority_TokenStringsAreUnique(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)
	file := seedFile(t, db, "f.bin")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := a.Issue(file.ID)
		req.NoError(err)
		req.False(seen[token])
		seen[token] = true
	}
}

func TestAuthority_RedeemUnknownToken(t *testing.T) {
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)
	user := seedUser(t, db, "bob")

	_, err := a.Redeem(uuid.NewString(), user)
	require.True(t, httperr.IsKind(err, httperr.KindNotFound))
}

func TestAuthority_RedeemExpiredToken(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, -time.Second) // already expired at issue time

	user := seedUser(t, db, "carol")
	file := seedFile(t, db, "f.bin")
	grantOwnership(t, db, user, file)

	token, err := a.Issue(file.ID)
	req.NoError(err)

	_, err = a.Redeem(token, user)
	req.True(httperr.IsKind(err, httperr.KindForbidden))
	req.Contains(err.(*httperr.Error).Message, "expired")
}

func TestAuthority_RedeemUnauthorized(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)

	owner := seedUser(t, db, "owner")
	stranger := seedUser(t, db, "stranger")
	file := seedFile(t, db, "private.bin")
	grantOwnership(t, db, owner, file)

	token, err := a.Issue(file.ID)
	req.NoError(err)

	_, err = a.Redeem(token, stranger)
	req.True(httperr.IsKind(err, httperr.KindForbidden))
	req.Contains(err.(*httperr.Error).Message, "permission")

	// The failed attempt must not consume the token for the rightful owner.
	_, err = a.Redeem(token, owner)
	req.NoError(err)
}

func TestAuthority_RedeemMissingReferentIsIntegrityFault(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)
	user := seedUser(t, db, "dave")

	// Token bound to a file that never existed.
	orphan := models.DownloadToken{
		Token:     uuid.NewString(),
		FileID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	req.NoError(db.Create(&orphan).Error)

	_, err := a.Redeem(orphan.Token, user)
	req.True(httperr.IsKind(err, httperr.KindDatabase))
}

func TestAuthority_TrendingGrantsAccess(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)

	stranger := seedUser(t, db, "stranger")
	popular := seedFile(t, db, "popular.gif")

	ok, err := a.CanAccess(stranger, popular.ID)
	req.NoError(err)
	// With fewer than 10 files everything is trending; bury it first.
	req.True(ok)

	// Push 10 better-liked files so `popular` drops out of the top 10.
	for i := 0; i < 10; i++ {
		f := seedFile(t, db, fmt.Sprintf("better-%d.bin", i))
		voter := seedUser(t, db, fmt.Sprintf("voter%d", i))
		req.NoError(db.Create(&models.Like{FileID: f.ID, UserID: voter.ID}).Error)
	}

	ok, err = a.CanAccess(stranger, popular.ID)
	req.NoError(err)
	req.False(ok)

	// Trending membership is re-checked at redemption time: a token issued
	// while trending fails once the file has dropped out.
	token, err := a.Issue(popular.ID)
	req.NoError(err)
	_, err = a.Redeem(token, stranger)
	req.True(httperr.IsKind(err, httperr.KindForbidden))

	// And it recovers when the file climbs back up.
	booster := seedUser(t, db, "booster")
	booster2 := seedUser(t, db, "booster2")
	req.NoError(db.Create(&models.Like{FileID: popular.ID, UserID: booster.ID}).Error)
	req.NoError(db.Create(&models.Like{FileID: popular.ID, UserID: booster2.ID}).Error)

	token2, err := a.Issue(popular.ID)
	req.NoError(err)
	got, err := a.Redeem(token2, stranger)
	req.NoError(err)
	req.Equal(popular.ID, got.ID)
}

func TestAuthority_TrendingOrderAndLimit(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)

	// 12 files, file i gets i likes: top 10 are files 11..2 descending.
	files := make([]*models.File, 12)
	for i := 0; i < 12; i++ {
		files[i] = seedFile(t, db, fmt.Sprintf("f-%d.bin", i))
		for j := 0; j < i; j++ {
			voter := seedUser(t, db, fmt.Sprintf("u-%d-%d", i, j))
			req.NoError(db.Create(&models.Like{FileID: files[i].ID, UserID: voter.ID}).Error)
		}
	}

	trending, err := a.Trending()
	req.NoError(err)
	req.Len(trending, 10)
	req.Equal(files[11].ID, trending[0].ID)
	req.Equal(files[10].ID, trending[1].ID)
	for k := 0; k+1 < len(trending); k++ {
		req.GreaterOrEqual(len(trending[k].Likes), len(trending[k+1].Likes))
	}
}

func TestAuthority_DeleteSpent(t *testing.T) {
	req := require.New(t)
	db := setupTestDB(t)
	a := newTestAuthority(t, db, 30*time.Second)
	file := seedFile(t, db, "f.bin")

	used := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, Used: true, ExpiresAt: time.Now().Add(time.Hour)}
	expired := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, ExpiresAt: time.Now().Add(-time.Hour)}
	live := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, ExpiresAt: time.Now().Add(time.Hour)}
	for _, tok := range []*models.DownloadToken{&used, &expired, &live} {
		req.NoError(db.Create(tok).Error)
	}

	n, err := a.DeleteSpent()
	req.NoError(err)
	req.EqualValues(2, n)

	var remaining []models.DownloadToken
	req.NoError(db.Find(&remaining).Error)
	req.Len(remaining, 1)
	req.Equal(live.Token, remaining[0].Token)
}
