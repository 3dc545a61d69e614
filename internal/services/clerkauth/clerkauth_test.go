package clerkauth

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/membership-api/internal/models"
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestProfileOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user *clerk.User
		want models.Profile
	}{
		{
			name: "nil user",
			want: models.Profile{},
		},
		{
			name: "primary email first",
			user: &clerk.User{
				ID:                    "user_1",
				Username:              ptr("alice"),
				FirstName:             ptr("Alice"),
				LastName:              ptr("Liddell"),
				PrimaryEmailAddressID: ptr("idn_2"),
				EmailAddresses: []*clerk.EmailAddress{
					{ID: "idn_1", EmailAddress: "old@example.com"},
					{ID: "idn_2", EmailAddress: "alice@example.com"},
					{ID: "idn_3", EmailAddress: ""},
				},
			},
			want: models.Profile{
				Emails:      []string{"alice@example.com", "old@example.com"},
				Username:    "alice",
				DisplayName: "Alice",
			},
		},
		{
			name: "first name only",
			user: &clerk.User{ID: "user_2", FirstName: ptr("Bob")},
			want: models.Profile{DisplayName: "Bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ProfileOf(tt.user))
		})
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	fetched := 0
	a := &Authenticator{
		verify: func(_ context.Context, token string) (string, error) {
			switch token {
			case "good":
				return "user_1", nil
			case "anonymous":
				return "", nil
			}
			return "", errors.New("signature mismatch")
		},
		getUser: func(_ context.Context, id string) (*clerk.User, error) {
			fetched++
			if id != "user_1" {
				return nil, errors.New("not found")
			}
			return &clerk.User{ID: id, Username: ptr("alice")}, nil
		},
	}

	identity, load, err := a.Authenticate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user_1", identity)
	assert.Zero(t, fetched, "profile must load lazily")

	profile, err := load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, 1, fetched)

	_, _, err = a.Authenticate(context.Background(), "forged")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = a.Authenticate(context.Background(), "anonymous")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Profile(context.Background(), "user_9")
	assert.Error(t, err)
}
