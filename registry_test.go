package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testGameLogEntry() GameLogEntry {
	dt := time.Date(2023, 11, 4, 23, 0, 0, 0, time.UTC)
	return GameLogEntry{
		Season:    2023,
		Game:      20204,
		Datetime:  dt,
		Date:      datatypes.Date(dt),
		Venue:     "Capital One Arena",
		Home:      "WSH",
		HomeCoach: "Spencer Carbery",
		HomeScore: 3,
		Away:      "MTL",
		AwayCoach: notAvailable,
		AwayScore: 2,
	}
}

func TestRegistry_MergePlayers(t *testing.T) {
	r := NewRegistry()
	ovi := Player{ID: 8471214, Name: "Alex Ovechkin", Team: "WSH", Pos: "L", Number: 8, Hand: "R"}

	assert.Equal(t, 1, r.MergePlayers([]Player{ovi}))
	assert.Equal(t, 0, r.MergePlayers([]Player{ovi}))

	// A trade or a new number is a new row.
	traded := ovi
	traded.Team = "MTL"
	renumbered := ovi
	renumbered.Number = 88
	assert.Equal(t, 2, r.MergePlayers([]Player{traded, renumbered, ovi}))

	assert.Len(t, r.Players(""), 3)
	assert.Len(t, r.Players("WSH"), 2)
	assert.Len(t, r.Players("MTL"), 1)
	assert.Empty(t, r.Players("BOS"))
}

func TestRegistry_MergeTeam(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.MergeTeam(Team{ID: 15, Abbreviation: "WSH", Name: "Washington Capitals"}))
	assert.False(t, r.MergeTeam(Team{ID: 15, Abbreviation: "XXX"}))
	assert.True(t, r.MergeTeam(Team{ID: 8, Abbreviation: "MTL", Name: "Montréal Canadiens"}))

	team, ok := r.TeamByID(15)
	require.True(t, ok)
	assert.Equal(t, "WSH", team.Abbreviation)

	_, ok = r.TeamByID(6)
	assert.False(t, ok)

	teams := r.Teams()
	require.Len(t, teams, 2)
	assert.Equal(t, "MTL", teams[0].Abbreviation)
	assert.Equal(t, "WSH", teams[1].Abbreviation)
}

func TestRegistry_PersistAndLoad(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry()
	assert.False(t, r.Dirty())

	r.MergeTeam(Team{ID: 15, Abbreviation: "WSH", Name: "Washington Capitals"})
	r.MergePlayers([]Player{
		{ID: 8471214, Name: "Alex Ovechkin", Team: "WSH", Pos: "L", Number: 8, Hand: "R"},
		{ID: 8475311, Name: "Darcy Kuemper", Team: "WSH", Pos: "G", Number: 35, Hand: "L"},
	})
	r.MergeGame(testGameLogEntry())
	assert.True(t, r.Dirty())

	require.NoError(t, r.Persist(db))
	assert.False(t, r.Dirty())

	// Persisting twice writes nothing new.
	require.NoError(t, r.Persist(db))
	var n int64
	require.NoError(t, db.Model(&Player{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)

	loaded, err := LoadRegistry(db)
	require.NoError(t, err)
	if diff := cmp.Diff(r.Teams(), loaded.Teams()); diff != "" {
		t.Errorf("teams mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(r.Players(""), loaded.Players("")); diff != "" {
		t.Errorf("players mismatch (-want +got):\n%s", diff)
	}

	game, ok := loaded.Game(2023, 20204)
	require.True(t, ok)
	assert.True(t, game.Datetime.Equal(testGameLogEntry().Datetime))
	assert.Equal(t, "Capital One Arena", game.Venue)
	assert.Equal(t, 3, game.HomeScore)
	assert.False(t, loaded.Dirty())
}

func TestRegistry_MergeGameReplacesRow(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry()

	entry := testGameLogEntry()
	assert.True(t, r.MergeGame(entry))
	assert.False(t, r.MergeGame(entry))
	require.NoError(t, r.Persist(db))

	entry.AwayScore = 4
	assert.True(t, r.MergeGame(entry))
	require.NoError(t, r.Persist(db))

	var rows []GameLogEntry
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].AwayScore)
}

func TestRegistry_Games(t *testing.T) {
	r := NewRegistry()
	a := testGameLogEntry()
	b := a
	b.Game = 20001
	c := a
	c.Season = 2022
	r.MergeGame(a)
	r.MergeGame(b)
	r.MergeGame(c)

	all := r.Games(0)
	require.Len(t, all, 3)
	assert.Equal(t, 2022, all[0].Season)
	assert.Equal(t, 20001, all[1].Game)
	assert.Equal(t, 20204, all[2].Game)

	assert.Len(t, r.Games(2023), 2)
	assert.Empty(t, r.Games(2019))
}
