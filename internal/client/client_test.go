// internal/client/client_test.go
package client

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jason-s-yu/ygame/internal/game"
	v1 "github.com/jason-s-yu/ygame/internal/protocol/v1"
)

func TestChooseProtocol(t *testing.T) {
	tests := []struct {
		name    string
		known   []uint32
		want    uint32
		wantOK  bool
	}{
		{"exact match", []uint32{1}, 1, true},
		{"client knows more", []uint32{1, 2, 99}, 1, true},
		{"no overlap", []uint32{7, 42}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chooseProtocol(tt.known)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectStatus(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	third := uuid.New()

	tests := []struct {
		name string
		info game.Info
		want v1.GameStatus
	}{
		{
			"empty game is joinable",
			game.Info{Status: game.StatusCreated},
			v1.StatusJoinable,
		},
		{
			"one stranger seated is joinable",
			game.Info{Status: game.StatusCreated, Seat1: &other},
			v1.StatusJoinable,
		},
		{
			"own seat is rejoinable",
			game.Info{Status: game.StatusStarted, Seat1: &me, Seat2: &other},
			v1.StatusRejoinable,
		},
		{
			"own second seat is rejoinable",
			game.Info{Status: game.StatusStarted, Seat1: &other, Seat2: &me},
			v1.StatusRejoinable,
		},
		{
			"strangers on both seats is full",
			game.Info{Status: game.StatusStarted, Seat1: &other, Seat2: &third},
			v1.StatusFull,
		},
		{
			"finished beats own seat",
			game.Info{Status: game.StatusFinished, Seat1: &me, Seat2: &other},
			v1.StatusFinished,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectStatus(tt.info, me))
		})
	}
}

func TestDetailsFromInfo(t *testing.T) {
	alice := "alice"
	seat1 := uuid.New()
	id := uuid.New()
	info := game.Info{
		ID:        id,
		Name:      "Bold Heron",
		Status:    game.StatusCreated,
		Seat1:     &seat1,
		Seat1Name: &alice,
	}

	details := detailsFromInfo(info)
	assert.Equal(t, id.String(), details.ID)
	assert.Equal(t, "Bold Heron", details.Name)
	assert.False(t, details.IsFinished)
	assert.Equal(t, &alice, details.Seat1Username)
	assert.Nil(t, details.Seat2Username)

	info.Status = game.StatusFinished
	assert.True(t, detailsFromInfo(info).IsFinished)
}
