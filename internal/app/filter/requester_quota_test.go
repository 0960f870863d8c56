package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

func TestRequesterQuotaFilter_Check(t *testing.T) {
	tests := []struct {
		name          string
		maxQueued     int
		alreadyQueued int
		playlistSize  int
		wantAccepted  bool
	}{
		{
			name:          "under quota",
			maxQueued:     3,
			alreadyQueued: 1,
			playlistSize:  1,
			wantAccepted:  true,
		},
		{
			name:          "fills quota exactly",
			maxQueued:     2,
			alreadyQueued: 1,
			playlistSize:  1,
			wantAccepted:  true,
		},
		{
			name:          "at quota already",
			maxQueued:     2,
			alreadyQueued: 2,
			playlistSize:  1,
			wantAccepted:  false,
		},
		{
			name:          "playlist counts with full size",
			maxQueued:     4,
			alreadyQueued: 0,
			playlistSize:  5,
			wantAccepted:  false,
		},
		{
			name:          "playlist within quota",
			maxQueued:     5,
			alreadyQueued: 2,
			playlistSize:  3,
			wantAccepted:  true,
		},
		{
			name:          "zero playlist size counts as one",
			maxQueued:     1,
			alreadyQueued: 0,
			playlistSize:  0,
			wantAccepted:  true,
		},
		{
			name:          "zero max means no limit",
			maxQueued:     0,
			alreadyQueued: 100,
			playlistSize:  50,
			wantAccepted:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRequesterQuotaFilter()
			f.config = &RequesterQuotaConfig{MaxQueued: tt.maxQueued}

			req := Request{
				Requester:    media.Requester{ID: "u1", Kind: media.RequesterKindUser},
				Queue:        &fakeQueue{counts: map[string]int{"u1": tt.alreadyQueued}},
				PlaylistSize: tt.playlistSize,
			}

			result := f.Check(context.Background(), req, media.Descriptor{})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "requester_quota_exceeded", result.Code)
			}
		})
	}
}

func TestRequesterQuotaFilter_Check_OtherRequestersDoNotCount(t *testing.T) {
	f := NewRequesterQuotaFilter()
	f.config = &RequesterQuotaConfig{MaxQueued: 1}

	req := Request{
		Requester:    media.Requester{ID: "u1", Kind: media.RequesterKindUser},
		Queue:        &fakeQueue{counts: map[string]int{"u2": 10}},
		PlaylistSize: 1,
	}

	result := f.Check(context.Background(), req, media.Descriptor{})

	assert.True(t, result.Accepted, "only the requester's own entries count against the quota")
}

func TestRequesterQuotaFilter_Check_Unconfigured(t *testing.T) {
	f := NewRequesterQuotaFilter()

	req := Request{
		Requester: media.Requester{ID: "u1", Kind: media.RequesterKindUser},
		Queue:     &fakeQueue{counts: map[string]int{"u1": 100}},
	}

	assert.True(t, f.Check(context.Background(), req, media.Descriptor{}).Accepted)
}

func TestRequesterQuotaFilter_Check_NilQueue(t *testing.T) {
	f := NewRequesterQuotaFilter()
	f.config = &RequesterQuotaConfig{MaxQueued: 1}

	req := Request{Requester: media.Requester{ID: "u1", Kind: media.RequesterKindUser}}

	assert.True(t, f.Check(context.Background(), req, media.Descriptor{}).Accepted)
}

func TestRequesterQuotaFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{
			name:     "valid",
			settings: map[string]any{"max_queued": 5},
			wantErr:  false,
		},
		{
			name:     "zero means no limit",
			settings: map[string]any{"max_queued": 0},
			wantErr:  false,
		},
		{
			name:     "negative",
			settings: map[string]any{"max_queued": -1},
			wantErr:  true,
		},
		{
			name:     "empty settings",
			settings: map[string]any{},
			wantErr:  false,
		},
		{
			name:     "non-numeric value",
			settings: map[string]any{"max_queued": "many"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRequesterQuotaFilter()
			err := f.ValidateConfig(tt.settings)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequesterQuotaFilter_AppliesTo(t *testing.T) {
	f := NewRequesterQuotaFilter()

	assert.True(t, f.AppliesTo(media.RequesterKindUser))
	assert.False(t, f.AppliesTo(media.RequesterKindAutoplay))
	assert.False(t, f.AppliesTo(media.RequesterKindSystem))
}
