package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reposcore/config"
	"reposcore/fetcher"
	"reposcore/graph"
	"reposcore/leaderboard"
	"reposcore/models"
	"reposcore/scoring"
)

var fixedNow = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// MockGitHubClient is a mock implementation of the GitHub client
type MockGitHubClient struct {
	mock.Mock
}

func (m *MockGitHubClient) FetchRepoData(ctx context.Context, owner, name string) (*models.RawRepository, error) {
	args := m.Called(ctx, owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RawRepository), args.Error(1)
}

// MockRecorder is a mock implementation of the leaderboard recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordScored(ctx context.Context, userID string, mode models.VisualizationMode, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.UserVisualization, error) {
	args := m.Called(ctx, userID, mode, raw, res, scoredAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserVisualization), args.Error(1)
}

func (m *MockRecorder) SaveScore(ctx context.Context, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.Repository, error) {
	args := m.Called(ctx, raw, res, scoredAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repository), args.Error(1)
}

// MockStaleLister is a mock implementation of the stale repository source
type MockStaleLister struct {
	mock.Mock
}

func (m *MockStaleLister) StaleRepositories(ctx context.Context, before time.Time, limit int) ([]models.Repository, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

func (m *MockStaleLister) MarkRescoreAttempt(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// rescoreStore keeps repositories in memory and orders stale rows the way
// the database does: least recently scored or attempted first, untouched rows
// before all others.
type rescoreStore struct {
	repos []*models.Repository
	tried map[string]time.Time
}

func newRescoreStore(repos ...models.Repository) *rescoreStore {
	st := &rescoreStore{tried: map[string]time.Time{}}
	for i := range repos {
		st.repos = append(st.repos, &repos[i])
	}
	return st
}

func (st *rescoreStore) touched(r *models.Repository) (time.Time, bool) {
	at, ok := st.tried[r.ID]
	if r.LastScoredAt.Valid && (!ok || r.LastScoredAt.Time.After(at)) {
		return r.LastScoredAt.Time, true
	}
	return at, ok
}

func (st *rescoreStore) StaleRepositories(_ context.Context, before time.Time, limit int) ([]models.Repository, error) {
	var due []*models.Repository
	for _, r := range st.repos {
		if at, ok := st.touched(r); !ok || at.Before(before) {
			due = append(due, r)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, aok := st.touched(due[i])
		b, bok := st.touched(due[j])
		if aok != bok {
			return !aok
		}
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].FullName < due[j].FullName
	})
	out := []models.Repository{}
	for i := 0; i < len(due) && i < limit; i++ {
		out = append(out, *due[i])
	}
	return out, nil
}

func (st *rescoreStore) MarkRescoreAttempt(_ context.Context, id string, at time.Time) error {
	st.tried[id] = at
	return nil
}

func (st *rescoreStore) RecordScored(context.Context, string, models.VisualizationMode, *models.RawRepository, scoring.Result, time.Time) (*models.UserVisualization, error) {
	return nil, errors.New("not used")
}

func (st *rescoreStore) SaveScore(_ context.Context, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.Repository, error) {
	for _, r := range st.repos {
		if r.FullName == raw.FullName {
			r.Score = res.Components.Final
			r.LastScoredAt = sql.NullTime{Time: scoredAt, Valid: true}
			return r, nil
		}
	}
	r := &models.Repository{
		ID:           fmt.Sprintf("id-%d", len(st.repos)),
		FullName:     raw.FullName,
		Score:        res.Components.Final,
		LastScoredAt: sql.NullTime{Time: scoredAt, Valid: true},
	}
	st.repos = append(st.repos, r)
	return r, nil
}

func (st *rescoreStore) byName(fullName string) *models.Repository {
	for _, r := range st.repos {
		if r.FullName == fullName {
			return r
		}
	}
	return nil
}

func sampleRepo(fullName string) *models.RawRepository {
	return &models.RawRepository{
		ID:            42,
		Name:          "react",
		FullName:      fullName,
		Language:      "JavaScript",
		Stars:         1200,
		Forks:         300,
		UpdatedAt:     fixedNow.Add(-2 * time.Hour),
		DefaultBranch: "main",
		Branches: []models.Branch{
			{Name: "main", Protected: true},
			{Name: "feature/auth"},
		},
		Commits: []models.Commit{
			{SHA: "a1b2c3d4e5", Message: "feature/auth: login form", AuthorLogin: "alice", Date: fixedNow.Add(-time.Hour)},
			{SHA: "f6e5d4c3b2", Message: "initial commit", AuthorName: "Bob", Date: fixedNow.Add(-72 * time.Hour)},
		},
	}
}

func TestVisualize(t *testing.T) {
	fetchErr := errors.New("connection reset")

	testCases := []struct {
		name          string
		repoURL       string
		setupMocks    func(*MockGitHubClient)
		expectedErr   error
		expectScore   bool
		expectedName  string
		expectedNodes int
	}{
		{
			name:    "scored repository",
			repoURL: "https://github.com/facebook/react",
			setupMocks: func(client *MockGitHubClient) {
				client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(sampleRepo("facebook/react"), nil)
			},
			expectScore:   true,
			expectedName:  "facebook/react",
			expectedNodes: 4,
		},
		{
			name:        "invalid URL",
			repoURL:     "https://gitlab.com/facebook/react",
			setupMocks:  func(client *MockGitHubClient) {},
			expectedErr: fetcher.ErrInvalidRepoURL,
		},
		{
			name:    "fetch failure",
			repoURL: "facebook/react",
			setupMocks: func(client *MockGitHubClient) {
				client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(nil, fetchErr)
			},
			expectedName:  "facebook/react",
			expectedNodes: 2,
		},
		{
			name:    "empty repository",
			repoURL: "github.com/acme/empty",
			setupMocks: func(client *MockGitHubClient) {
				raw := sampleRepo("acme/empty")
				raw.Branches = nil
				raw.Commits = nil
				client.On("FetchRepoData", mock.Anything, "acme", "empty").Return(raw, nil)
			},
			expectedName:  "acme/empty",
			expectedNodes: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := new(MockGitHubClient)
			tc.setupMocks(client)
			s := New(client, nil, nil, WithClock(clock))

			res, err := s.Visualize(context.Background(), tc.repoURL)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, res)
				client.AssertNotCalled(t, "FetchRepoData", mock.Anything, mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, res.Graph)
			assert.Equal(t, tc.expectedName, res.Graph.Metadata.RepoName)
			assert.Len(t, res.Graph.Nodes, tc.expectedNodes)

			if tc.expectScore {
				require.NotNil(t, res.Score)
				assert.False(t, res.Degraded)
				assert.Equal(t, scoring.Score(res.Raw, fixedNow), *res.Score)
				assert.Equal(t, scoring.TierFor(res.Score.Components.Composite), res.Tier)
				assert.Equal(t, scoring.FormatDisplay(res.Score.Components), res.Display)
				assert.NotEmpty(t, res.TierColor)
				assert.Equal(t, fixedNow, res.ScoredAt)
			} else {
				assert.Nil(t, res.Score)
				assert.True(t, res.Degraded)
				assert.Empty(t, res.Tier)
				assert.Equal(t, graph.RootID, res.Graph.Nodes[0].ID)
			}

			client.AssertExpectations(t)
		})
	}
}

func TestVisualizeAndRecord(t *testing.T) {
	raw := sampleRepo("facebook/react")
	expectedScore := scoring.Score(raw, fixedNow)
	stored := &models.UserVisualization{ID: "viz-1", UserID: "user-1", RepoScore: expectedScore.Components.Final}

	testCases := []struct {
		name        string
		userID      string
		mode        models.VisualizationMode
		setupMocks  func(*MockGitHubClient, *MockRecorder)
		expectedErr error
		expectViz   bool
		expectRes   bool
	}{
		{
			name:   "records scored visualization",
			userID: "user-1",
			mode:   models.ModeBrain,
			setupMocks: func(client *MockGitHubClient, rec *MockRecorder) {
				client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(raw, nil)
				rec.On("RecordScored", mock.Anything, "user-1", models.ModeBrain, raw, expectedScore, fixedNow).Return(stored, nil)
			},
			expectViz: true,
			expectRes: true,
		},
		{
			name:        "missing user",
			userID:      "  ",
			mode:        models.ModeTree,
			setupMocks:  func(client *MockGitHubClient, rec *MockRecorder) {},
			expectedErr: leaderboard.ErrValidation,
		},
		{
			name:        "invalid mode",
			userID:      "user-1",
			mode:        models.VisualizationMode("galaxy"),
			setupMocks:  func(client *MockGitHubClient, rec *MockRecorder) {},
			expectedErr: leaderboard.ErrValidation,
		},
		{
			name:   "fallback is not recorded",
			userID: "user-1",
			mode:   models.ModeTree,
			setupMocks: func(client *MockGitHubClient, rec *MockRecorder) {
				client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(nil, errors.New("timeout"))
			},
			expectRes: true,
		},
		{
			name:   "persistence error propagates",
			userID: "user-1",
			mode:   models.ModeBrain,
			setupMocks: func(client *MockGitHubClient, rec *MockRecorder) {
				client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(raw, nil)
				rec.On("RecordScored", mock.Anything, "user-1", models.ModeBrain, raw, expectedScore, fixedNow).
					Return(nil, leaderboard.ErrValidation)
			},
			expectedErr: leaderboard.ErrValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := new(MockGitHubClient)
			rec := new(MockRecorder)
			tc.setupMocks(client, rec)
			s := New(client, rec, nil, WithClock(clock))

			res, viz, err := s.VisualizeAndRecord(context.Background(), tc.userID, "https://github.com/facebook/react", tc.mode)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectRes, res != nil)
			if tc.expectViz {
				assert.Equal(t, stored, viz)
			} else {
				assert.Nil(t, viz)
				if tc.expectedErr == nil {
					rec.AssertNotCalled(t, "RecordScored", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				}
			}

			client.AssertExpectations(t)
			rec.AssertExpectations(t)
		})
	}
}

func TestVisualizeAndRecordWithoutRecorder(t *testing.T) {
	s := New(new(MockGitHubClient), nil, nil)

	_, _, err := s.VisualizeAndRecord(context.Background(), "user-1", "facebook/react", models.ModeBrain)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRescore(t *testing.T) {
	staleAfter := 6 * time.Hour
	before := fixedNow.Add(-staleAfter)

	fresh := sampleRepo("facebook/react")
	empty := sampleRepo("acme/empty")
	empty.Branches = nil

	client := new(MockGitHubClient)
	rec := new(MockRecorder)
	stale := new(MockStaleLister)

	stale.On("StaleRepositories", mock.Anything, before, rescoreBatchSize).Return([]models.Repository{
		{ID: "r1", FullName: "facebook/react", Owner: "facebook", Name: "react"},
		{ID: "r2", FullName: "acme/gone", Owner: "acme", Name: "gone"},
		{ID: "r3", FullName: "acme/empty", Owner: "acme", Name: "empty"},
		{ID: "r4", FullName: "acme/broken", Owner: "acme", Name: "broken"},
	}, nil)
	stale.On("MarkRescoreAttempt", mock.Anything, "r2", fixedNow).Return(nil)
	stale.On("MarkRescoreAttempt", mock.Anything, "r3", fixedNow).Return(nil)
	stale.On("MarkRescoreAttempt", mock.Anything, "r4", fixedNow).Return(errors.New("db down"))

	client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(fresh, nil)
	client.On("FetchRepoData", mock.Anything, "acme", "gone").Return(nil, errors.New("not found"))
	client.On("FetchRepoData", mock.Anything, "acme", "empty").Return(empty, nil)
	broken := sampleRepo("acme/broken")
	client.On("FetchRepoData", mock.Anything, "acme", "broken").Return(broken, nil)

	rec.On("SaveScore", mock.Anything, fresh, scoring.Score(fresh, fixedNow), fixedNow).
		Return(&models.Repository{FullName: "facebook/react"}, nil)
	rec.On("SaveScore", mock.Anything, broken, scoring.Score(broken, fixedNow), fixedNow).
		Return(nil, errors.New("db down"))

	s := New(client, rec, stale, WithClock(clock), WithRescore("", staleAfter))

	n, err := s.Rescore(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	client.AssertExpectations(t)
	rec.AssertExpectations(t)
	stale.AssertExpectations(t)
	rec.AssertNumberOfCalls(t, "SaveScore", 2)
	stale.AssertNotCalled(t, "MarkRescoreAttempt", mock.Anything, "r1", mock.Anything)
}

func TestRescoreFailingRepositoriesDoNotStarveOthers(t *testing.T) {
	staleAfter := 24 * time.Hour
	old := sql.NullTime{Time: fixedNow.Add(-72 * time.Hour), Valid: true}

	repos := make([]models.Repository, 0, rescoreBatchSize+1)
	for i := 0; i < rescoreBatchSize; i++ {
		repos = append(repos, models.Repository{
			ID:       fmt.Sprintf("dead-%03d", i),
			Owner:    "dead",
			Name:     fmt.Sprintf("repo-%03d", i),
			FullName: fmt.Sprintf("dead/repo-%03d", i),
		})
	}
	repos = append(repos, models.Repository{ID: "live", Owner: "facebook", Name: "react", FullName: "facebook/react", LastScoredAt: old})
	store := newRescoreStore(repos...)

	client := new(MockGitHubClient)
	client.On("FetchRepoData", mock.Anything, "dead", mock.Anything).Return(nil, errors.New("not found"))
	client.On("FetchRepoData", mock.Anything, "facebook", "react").Return(sampleRepo("facebook/react"), nil)

	s := New(client, store, store, WithClock(clock), WithRescore("", staleAfter))

	n, err := s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "the first batch is all failing repositories")

	n, err = s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	live := store.byName("facebook/react")
	assert.Equal(t, fixedNow, live.LastScoredAt.Time)

	// Nothing is due again within the window.
	n, err = s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	client.AssertNumberOfCalls(t, "FetchRepoData", rescoreBatchSize+1)
}

func TestRescoreRenamedRepository(t *testing.T) {
	store := newRescoreStore(models.Repository{
		ID: "old", Owner: "acme", Name: "widget", FullName: "acme/widget",
		LastScoredAt: sql.NullTime{Time: fixedNow.Add(-72 * time.Hour), Valid: true},
	})

	client := new(MockGitHubClient)
	client.On("FetchRepoData", mock.Anything, "acme", "widget").Return(sampleRepo("acme/gadget"), nil).Once()

	s := New(client, store, store, WithClock(clock), WithRescore("", 24*time.Hour))

	n, err := s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	renamed := store.byName("acme/gadget")
	require.NotNil(t, renamed)
	assert.Equal(t, fixedNow, renamed.LastScoredAt.Time)
	assert.Equal(t, fixedNow, store.tried["old"])

	n, err = s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	client.AssertExpectations(t)
}

func TestRescoreErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := New(new(MockGitHubClient), nil, nil)
		_, err := s.Rescore(context.Background())
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("listing fails", func(t *testing.T) {
		stale := new(MockStaleLister)
		listErr := errors.New("db down")
		stale.On("StaleRepositories", mock.Anything, mock.Anything, rescoreBatchSize).Return(nil, listErr)

		s := New(new(MockGitHubClient), new(MockRecorder), stale, WithClock(clock))
		n, err := s.Rescore(context.Background())

		assert.ErrorIs(t, err, listErr)
		assert.Zero(t, n)
	})

	t.Run("cancelled", func(t *testing.T) {
		stale := new(MockStaleLister)
		stale.On("StaleRepositories", mock.Anything, mock.Anything, rescoreBatchSize).
			Return([]models.Repository{{FullName: "a/b", Owner: "a", Name: "b"}}, nil)
		client := new(MockGitHubClient)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := New(client, new(MockRecorder), stale, WithClock(clock))
		_, err := s.Rescore(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		client.AssertNotCalled(t, "FetchRepoData", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestScheduler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := New(new(MockGitHubClient), nil, nil)
		require.NoError(t, s.startScheduler())
		assert.Nil(t, s.cron)
		assert.True(t, s.nextRun().IsZero())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		s := New(new(MockGitHubClient), nil, nil, WithRescore("every now and then", time.Hour))
		err := s.startScheduler()
		assert.ErrorIs(t, err, ErrServiceInit)
		assert.Nil(t, s.cron)
	})

	t.Run("scheduled", func(t *testing.T) {
		s := New(new(MockGitHubClient), nil, nil, WithRescore("@every 1h", time.Hour))
		require.NoError(t, s.startScheduler())
		require.NotNil(t, s.cron)
		assert.False(t, s.nextRun().IsZero())

		require.NoError(t, s.Close())
		assert.Nil(t, s.cron)
	})
}

func TestStartStopsOnCancel(t *testing.T) {
	s := New(new(MockGitHubClient), nil, nil)
	s.config = &config.Config{HTTPAddr: "127.0.0.1:0"}

	done := make(chan error, 1)
	go func() { done <- s.Start(nil) }()

	time.Sleep(50 * time.Millisecond)
	s.cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestPingWithoutDatabase(t *testing.T) {
	s := New(new(MockGitHubClient), nil, nil)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrNotConfigured)
	assert.Nil(t, s.Leaderboard())
	assert.Nil(t, s.Captions())
	assert.NoError(t, s.Close())
}
