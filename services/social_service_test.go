package services

import (
	"testing"

	"chatwire/errors"

	"github.com/stretchr/testify/require"
)

func TestSocialService_GroupInvites(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	_, err := f.social.CreateGroup(f.aliceID, "team")
	req.NoError(err)

	t.Run("only members can invite", func(t *testing.T) {
		_, err := f.social.Invite(f.bobID, "team", "alice")
		require.ErrorIs(t, err, errors.ErrNotGroupMember)
	})

	inviteID, err := f.social.Invite(f.aliceID, "team", "bob")
	req.NoError(err)

	t.Run("invite lands in the invitee's pending list", func(t *testing.T) {
		rows, err := f.social.PendingInvites(f.bobID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("only the invitee can respond", func(t *testing.T) {
		err := f.social.RespondInvite(f.aliceID, inviteID, true)
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("accepting joins the group", func(t *testing.T) {
		req := require.New(t)
		req.NoError(f.social.RespondInvite(f.bobID, inviteID, true))

		groups, err := f.social.MyGroups(f.bobID)
		req.NoError(err)
		req.Equal([]string{"team"}, groups)

		// The invite is consumed; responding again fails.
		req.ErrorIs(f.social.RespondInvite(f.bobID, inviteID, true), errors.ErrNotFound)
	})
}

func TestSocialService_FriendRequests(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	t.Run("cannot befriend yourself", func(t *testing.T) {
		_, err := f.social.AddFriend(f.aliceID, "alice", "hi me")
		require.ErrorIs(t, err, errors.ErrMalformedCommand)
	})

	requestID, err := f.social.AddFriend(f.aliceID, "bob", "hello bob")
	req.NoError(err)

	rows, err := f.social.FriendRequests(f.bobID)
	req.NoError(err)
	req.Len(rows, 1)

	t.Run("rejecting leaves no friendship", func(t *testing.T) {
		req := require.New(t)
		req.NoError(f.social.RespondFriend(f.bobID, requestID, false))
		friends, err := f.social.Friends(f.aliceID)
		req.NoError(err)
		req.Empty(friends)
	})

	t.Run("accepting creates the friendship both ways", func(t *testing.T) {
		req := require.New(t)
		secondID, err := f.social.AddFriend(f.aliceID, "bob", "try again")
		req.NoError(err)
		req.NoError(f.social.RespondFriend(f.bobID, secondID, true))

		friends, err := f.social.Friends(f.aliceID)
		req.NoError(err)
		req.Equal([]string{"bob"}, friends)

		friends, err = f.social.Friends(f.bobID)
		req.NoError(err)
		req.Equal([]string{"alice"}, friends)
	})
}
