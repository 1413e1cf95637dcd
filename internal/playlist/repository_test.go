package playlist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"cadence/internal/database"
	"cadence/pkg/models"

	"github.com/sirupsen/logrus"
)

type fixture struct {
	db     *database.Database
	repo   *Repository
	userID int
	tracks []int
}

// setupTestRepo opens a fresh database with one user and three catalog tracks.
func setupTestRepo(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"), 5, logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := db.CreateUser(context.Background(), "listener", "hash")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	f := &fixture{db: db, repo: NewRepository(db.Conn(), logger), userID: user.ID}
	for i := 1; i <= 3; i++ {
		id, err := db.InsertTrack(models.Track{
			Title:    fmt.Sprintf("Track %d", i),
			FilePath: fmt.Sprintf("/music/track%d.mp3", i),
			Album:    &models.Album{Title: "Album"},
			Artists:  []models.Artist{{Name: "Artist"}},
			Genres:   []models.Genre{{Name: "Rock"}},
		})
		if err != nil {
			t.Fatalf("Failed to insert track: %v", err)
		}
		f.tracks = append(f.tracks, id)
	}
	return f
}

func trackIDs(p *models.Playlist) []int {
	ids := make([]int, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *fixture) create(t *testing.T, title string, tracks ...int) *models.Playlist {
	t.Helper()
	p, err := f.repo.Create(context.Background(), models.PlaylistInput{
		Title:    title,
		TrackIDs: tracks,
		OwnerID:  f.userID,
	})
	if err != nil {
		t.Fatalf("Create(%q) error: %v", title, err)
	}
	return p
}

func TestCreateDropsUnknownTracks(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	p, err := f.repo.Create(ctx, models.PlaylistInput{
		Title:       "Chill",
		Description: "",
		TrackIDs:    []int{f.tracks[0], f.tracks[1], 999},
		OwnerID:     f.userID,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	want := []int{f.tracks[0], f.tracks[1]}
	if got := trackIDs(p); !equalInts(got, want) {
		t.Errorf("tracks = %v, want %v", got, want)
	}
	if p.Description != nil {
		t.Errorf("empty description should be stored as null, got %q", *p.Description)
	}
	if p.User == nil || p.User.ID != f.userID {
		t.Errorf("owner not attached: %+v", p.User)
	}
	if p.LikesCount != 0 {
		t.Errorf("LikesCount = %d, want 0", p.LikesCount)
	}
}

func TestCreateCollapsesRepeatedIDs(t *testing.T) {
	f := setupTestRepo(t)
	p := f.create(t, "Repeat", f.tracks[2], f.tracks[0], f.tracks[2])

	want := []int{f.tracks[2], f.tracks[0]}
	if got := trackIDs(p); !equalInts(got, want) {
		t.Errorf("tracks = %v, want %v", got, want)
	}
}

func TestCreateUnknownOwner(t *testing.T) {
	f := setupTestRepo(t)
	_, err := f.repo.Create(context.Background(), models.PlaylistInput{Title: "Ghost", OwnerID: 4242})
	if !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("Create() error = %v, want ErrOwnerNotFound", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	f := setupTestRepo(t)
	if _, err := f.repo.GetByID(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestListPage(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.create(t, fmt.Sprintf("List %d", i), f.tracks[0])
	}

	tests := []struct {
		name      string
		page      int
		limit     int
		wantItems int
	}{
		{name: "first page", page: 1, limit: 2, wantItems: 2},
		{name: "last partial page", page: 3, limit: 2, wantItems: 1},
		{name: "past the end", page: 4, limit: 2, wantItems: 0},
		{name: "page zero", page: 0, limit: 2, wantItems: 0},
		{name: "everything", page: 1, limit: 10, wantItems: 5},
		{name: "max int page", page: math.MaxInt, limit: 10, wantItems: 0},
		{name: "offset would wrap", page: math.MaxInt/10 + 2, limit: 10, wantItems: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, count, err := f.repo.ListPage(ctx, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("ListPage() error: %v", err)
			}
			if count != 5 {
				t.Errorf("count = %d, want 5", count)
			}
			if len(items) != tt.wantItems {
				t.Errorf("len(items) = %d, want %d", len(items), tt.wantItems)
			}
			if len(items) > tt.limit {
				t.Errorf("page exceeds limit")
			}
		})
	}

	items, _, err := f.repo.ListPage(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	track := items[0].Tracks[0]
	if track.Album == nil || track.Album.Title != "Album" {
		t.Errorf("page tracks should carry their album, got %+v", track.Album)
	}
	if len(track.Artists) != 1 || len(track.Genres) != 1 {
		t.Errorf("page tracks should carry artists and genres, got %+v", track)
	}
}

func TestLastPage(t *testing.T) {
	tests := []struct {
		count, limit, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{20, 10, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := LastPage(tt.count, tt.limit); got != tt.want {
			t.Errorf("LastPage(%d, %d) = %d, want %d", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	first := f.create(t, "First")
	second := f.create(t, "Second")

	other, err := f.db.CreateUser(ctx, "other", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Create(ctx, models.PlaylistInput{Title: "Theirs", OwnerID: other.ID}); err != nil {
		t.Fatal(err)
	}

	got, err := f.repo.ListByUser(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListByUser() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("ListByUser() = %+v, want [%d %d]", got, second.ID, first.ID)
	}

	none, err := f.repo.ListByUser(ctx, 4242)
	if err != nil || len(none) != 0 {
		t.Errorf("ListByUser(unknown) = %v, %v; want empty", none, err)
	}
}

func TestFindByTitlePrefix(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	for _, title := range []string{"Rock On", "Rockabilly", "rock bottom", "Hard Rock", "Rock Steady"} {
		f.create(t, title)
	}

	got, err := f.repo.FindByTitlePrefix(ctx, "Rock", 10)
	if err != nil {
		t.Fatalf("FindByTitlePrefix() error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
	for _, p := range got {
		if !strings.HasPrefix(p.Title, "Rock") {
			t.Errorf("title %q does not start with Rock", p.Title)
		}
	}

	limited, err := f.repo.FindByTitlePrefix(ctx, "Rock", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}

	wild, err := f.repo.FindByTitlePrefix(ctx, "%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(wild) != 0 {
		t.Errorf("wildcard prefix should match literally, got %d rows", len(wild))
	}
}

func TestAddTrackKeepsDuplicates(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	p := f.create(t, "Dupes", f.tracks[0])

	for i := 0; i < 2; i++ {
		if _, err := f.repo.AddTrack(ctx, p.ID, f.tracks[1]); err != nil {
			t.Fatalf("AddTrack() error: %v", err)
		}
	}

	got, err := f.repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{f.tracks[0], f.tracks[1], f.tracks[1]}
	if ids := trackIDs(got); !equalInts(ids, want) {
		t.Errorf("tracks = %v, want %v", ids, want)
	}
}

func TestAddTrackMissingReferences(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	p := f.create(t, "Target")

	if _, err := f.repo.AddTrack(ctx, 4242, f.tracks[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddTrack(missing playlist) error = %v, want ErrNotFound", err)
	}
	if _, err := f.repo.AddTrack(ctx, p.ID, 4242); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("AddTrack(missing track) error = %v, want ErrTrackNotFound", err)
	}
}

func TestUpdateReplacesFields(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	created, err := f.repo.Create(ctx, models.PlaylistInput{
		Cover:    "covers/old.jpg",
		Title:    "Before",
		TrackIDs: []int{f.tracks[0], f.tracks[1]},
		OwnerID:  f.userID,
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.repo.Update(ctx, created.ID, models.PlaylistInput{
		Title:       "After",
		Description: "new words",
		TrackIDs:    []int{f.tracks[2]},
		OwnerID:     f.userID,
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Title != "After" || updated.Description == nil || *updated.Description != "new words" {
		t.Errorf("fields not replaced: %+v", updated)
	}
	if ids := trackIDs(updated); !equalInts(ids, []int{f.tracks[2]}) {
		t.Errorf("tracks = %v, want [%d]", ids, f.tracks[2])
	}
	if updated.CoverPath() != "covers/old.jpg" {
		t.Errorf("cover should be kept when none is uploaded, got %q", updated.CoverPath())
	}

	recovered, err := f.repo.Update(ctx, created.ID, models.PlaylistInput{
		Cover:   "covers/new.jpg",
		Title:   "After",
		OwnerID: f.userID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if recovered.CoverPath() != "covers/new.jpg" {
		t.Errorf("cover = %q, want covers/new.jpg", recovered.CoverPath())
	}
}

func TestUpdateMissingReferences(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	p := f.create(t, "Here")

	if _, err := f.repo.Update(ctx, 4242, models.PlaylistInput{Title: "x", OwnerID: f.userID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing playlist) error = %v, want ErrNotFound", err)
	}
	if _, err := f.repo.Update(ctx, p.ID, models.PlaylistInput{Title: "x", OwnerID: 4242}); !errors.Is(err, ErrOwnerNotFound) {
		t.Errorf("Update(missing owner) error = %v, want ErrOwnerNotFound", err)
	}
}

func TestDeleteReturnsRemovedPlaylist(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	created, err := f.repo.Create(ctx, models.PlaylistInput{Cover: "covers/a.png", Title: "Gone", OwnerID: f.userID})
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := f.repo.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if deleted.CoverPath() != "covers/a.png" {
		t.Errorf("deleted cover = %q", deleted.CoverPath())
	}
	if _, err := f.repo.GetByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("playlist still present after delete: %v", err)
	}
	if _, err := f.repo.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRecommendedFor(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	none, err := f.repo.RecommendedFor(ctx, f.userID)
	if err != nil || len(none) != 0 {
		t.Fatalf("RecommendedFor(no likes) = %v, %v; want empty", none, err)
	}

	// highest liked track id is the seed
	if err := f.db.LikeTrack(ctx, f.userID, f.tracks[0]); err != nil {
		t.Fatal(err)
	}
	if err := f.db.LikeTrack(ctx, f.userID, f.tracks[2]); err != nil {
		t.Fatal(err)
	}

	only := f.create(t, "Only seed", f.tracks[2])
	twice := f.create(t, "Seed twice", f.tracks[2], f.tracks[2])
	f.create(t, "Contains seed", f.tracks[2], f.tracks[1])
	f.create(t, "Other", f.tracks[0])

	got, err := f.repo.RecommendedFor(ctx, f.userID)
	if err != nil {
		t.Fatalf("RecommendedFor() error: %v", err)
	}
	// resolveTracks collapses the repeat, so "Seed twice" holds the seed once
	if len(got) != 2 || got[0].ID != only.ID || got[1].ID != twice.ID {
		t.Errorf("RecommendedFor() = %+v, want playlists %d and %d", got, only.ID, twice.ID)
	}
}

func TestRecommendedForRespectsLimit(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	f.repo = NewRepository(f.db.Conn(), f.repo.logger, WithRecommendation(20, 2))

	if err := f.db.LikeTrack(ctx, f.userID, f.tracks[1]); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		f.create(t, fmt.Sprintf("Seed %d", i), f.tracks[1])
	}

	got, err := f.repo.RecommendedFor(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestUserDeleteCascadesPlaylists(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	p := f.create(t, "Cascade", f.tracks[0])

	if err := f.db.DeleteUser(ctx, f.userID); err != nil {
		t.Fatalf("DeleteUser() error: %v", err)
	}
	if _, err := f.repo.GetByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("playlist survived owner deletion: %v", err)
	}
}

func TestCoverPaths(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	if _, err := f.repo.Create(ctx, models.PlaylistInput{Cover: "covers/x.jpg", Title: "With", OwnerID: f.userID}); err != nil {
		t.Fatal(err)
	}
	f.create(t, "Without")

	covers, err := f.repo.CoverPaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(covers) != 1 || !covers["covers/x.jpg"] {
		t.Errorf("CoverPaths() = %v", covers)
	}
}
