package wiring_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/seed"
	"github.com/example/campus-voting/internal/testfixtures"
	"github.com/example/campus-voting/internal/wiring"
)

type envelope struct {
	Success   bool            `json:"success"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

type client struct {
	t      *testing.T
	server *httptest.Server
}

func (c client) do(method, path, token string, body any) (int, envelope, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env, raw
}

func seedFile() seed.File {
	open := true
	quota := 10
	day := application.StartOfDay(testfixtures.ReferenceTime())
	return seed.File{
		Admins: []seed.AdminSeed{{Username: "root", Password: "supersecret", Role: application.RoleSuperAdmin}},
		Teams:  []seed.TeamSeed{{Name: "Alpha"}, {Name: "Beta"}},
		Voting: &seed.VotingSeed{
			IsVotingOpen: &open,
			DailyQuota:   &quota,
			Slots: []seed.SlotSeed{{
				Date:  testfixtures.ReferenceDate(),
				Start: day,
				End:   day.Add(23 * time.Hour),
				Label: "Day 1",
			}},
		},
	}
}

func TestBuild_EndToEndVotingFlow(t *testing.T) {
	app := testfixtures.NewServiceFactory().NewApp(t, nil)
	ctx := context.Background()

	result, err := app.Seed(ctx, seedFile())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AdminsCreated)
	assert.Equal(t, 2, result.TeamsCreated)
	assert.True(t, result.ConfigUpdated)

	server := httptest.NewServer(app.Handler)
	t.Cleanup(server.Close)
	c := client{t: t, server: server}

	status, env, _ := c.do(http.MethodGet, "/teams", "", nil)
	require.Equal(t, http.StatusOK, status)
	var teams []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &teams))
	require.Len(t, teams, 2)
	teamIDs := map[string]string{}
	for _, team := range teams {
		teamIDs[team.Name] = team.ID
	}

	status, _, raw := c.do(http.MethodPost, "/auth/register", "", map[string]any{
		"name":        "Asha",
		"roll_number": "R001",
		"email":       "Asha@Campus.test",
		"password":    "password123",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	login := func() string {
		status, env, raw := c.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "asha@campus.test", "password": "password123"})
		require.Equal(t, http.StatusOK, status, string(raw))
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &body))
		require.NotEmpty(t, body.Token)
		return body.Token
	}
	token := login()

	status, env, raw = c.do(http.MethodPost, "/voting/cast", token, map[string]any{"votes": map[string]int{teamIDs["Alpha"]: 3}})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var cast struct {
		Used      int `json:"used"`
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cast))
	assert.Equal(t, 3, cast.Used)
	assert.Equal(t, 7, cast.Remaining)

	status, env, _ = c.do(http.MethodGet, "/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, status)
	var board struct {
		Standings []struct {
			Rank     int    `json:"rank"`
			TeamName string `json:"team_name"`
			Votes    int    `json:"votes"`
		} `json:"standings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.NotEmpty(t, board.Standings)
	assert.Equal(t, "Alpha", board.Standings[0].TeamName)
	assert.Equal(t, 3, board.Standings[0].Votes)
	assert.Equal(t, 1, board.Standings[0].Rank)

	// A second login supersedes the first device.
	fresh := login()
	status, env, _ = c.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_SESSION_EXPIRED", env.ErrorCode)
	status, _, _ = c.do(http.MethodGet, "/auth/me", fresh, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env, raw = c.do(http.MethodPost, "/auth/admin-login", "", map[string]string{"username": "root", "password": "supersecret"})
	require.Equal(t, http.StatusOK, status, string(raw))
	var adminLogin struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &adminLogin))

	status, _, raw = c.do(http.MethodGet, "/admin/transactions?format=csv", adminLogin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,account_id,team_id,vote_count"))
	assert.Contains(t, lines[1], teamIDs["Alpha"])

	status, env, _ = c.do(http.MethodGet, "/admin/transactions", fresh, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.ErrorCode)
}

func TestBuild_RejectsWeakSecret(t *testing.T) {
	harness := testfixtures.NewSQLiteHarness(t)
	cfg := testfixtures.TestConfig()
	cfg.SessionSecret = ""

	_, err := wiring.Build(context.Background(), cfg, harness.Storage, wiring.Options{})
	require.Error(t, err)

	_, err = wiring.Build(context.Background(), testfixtures.TestConfig(), nil, wiring.Options{})
	require.Error(t, err)
}

func TestSeed_IsIdempotentThroughApp(t *testing.T) {
	app := testfixtures.NewServiceFactory().NewApp(t, nil)
	ctx := context.Background()

	_, err := app.Seed(ctx, seedFile())
	require.NoError(t, err)
	again, err := app.Seed(ctx, seedFile())
	require.NoError(t, err)
	assert.Zero(t, again.AdminsCreated)
	assert.Zero(t, again.TeamsCreated)

	teams, err := app.Teams.List(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 2)
}
