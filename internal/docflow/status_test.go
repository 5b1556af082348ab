package docflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge-backend/pkg/actor"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

func qcActor() *actor.Actor {
	return &actor.Actor{ID: "qc-1", Username: "inspector", Role: actor.RoleQC}
}

func ownerActor() *actor.Actor {
	return &actor.Actor{ID: "owner-1", Username: "clerk", Role: actor.RoleUser}
}

func managerActor() *actor.Actor {
	return &actor.Actor{ID: "mgr-1", Username: "boss", Role: actor.RoleManager}
}

func receipt(status Status, lines int) DocumentState {
	return DocumentState{Kind: KindReceipt, Status: status, OwnerID: "owner-1", LineCount: lines}
}

func TestTransitionSubmit(t *testing.T) {
	t.Run("owner submits draft with lines", func(t *testing.T) {
		res, err := Transition(receipt(StatusDraft, 2), StatusSubmitted, ownerActor(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, res.Status)
		assert.Nil(t, res.LineStatus)
	})

	t.Run("empty document cannot be submitted", func(t *testing.T) {
		_, err := Transition(receipt(StatusDraft, 0), StatusSubmitted, ownerActor(), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
	})

	t.Run("non-owner regular user cannot submit", func(t *testing.T) {
		other := &actor.Actor{ID: "someone-else", Role: actor.RoleUser}
		_, err := Transition(receipt(StatusDraft, 2), StatusSubmitted, other, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
	})

	t.Run("manager may submit on behalf of owner", func(t *testing.T) {
		_, err := Transition(receipt(StatusDraft, 2), StatusSubmitted, managerActor(), "")
		assert.NoError(t, err)
	})
}

func TestTransitionApprove(t *testing.T) {
	t.Run("qc approves submitted and lines follow", func(t *testing.T) {
		res, err := Transition(receipt(StatusSubmitted, 2), StatusQCApproved, qcActor(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusQCApproved, res.Status)
		require.NotNil(t, res.LineStatus)
		assert.Equal(t, LineApproved, *res.LineStatus)
	})

	t.Run("regular user cannot approve", func(t *testing.T) {
		_, err := Transition(receipt(StatusSubmitted, 2), StatusQCApproved, ownerActor(), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
	})

	t.Run("draft cannot be approved directly", func(t *testing.T) {
		_, err := Transition(receipt(StatusDraft, 2), StatusQCApproved, qcActor(), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	})
}

func TestTransitionReject(t *testing.T) {
	t.Run("rejection requires a reason", func(t *testing.T) {
		_, err := Transition(receipt(StatusSubmitted, 2), StatusRejected, qcActor(), "   ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
	})

	t.Run("rejection with reason marks lines rejected", func(t *testing.T) {
		res, err := Transition(receipt(StatusSubmitted, 2), StatusRejected, qcActor(), "damaged packaging")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, res.Status)
		require.NotNil(t, res.LineStatus)
		assert.Equal(t, LineRejected, *res.LineStatus)
	})
}

func TestTransitionReopen(t *testing.T) {
	t.Run("owner reopens rejected document", func(t *testing.T) {
		res, err := Transition(receipt(StatusRejected, 2), StatusDraft, ownerActor(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, res.Status)
		require.NotNil(t, res.LineStatus)
		assert.Equal(t, LinePending, *res.LineStatus)
		assert.True(t, res.ClearQC)
		assert.True(t, res.ClearRejection)
	})

	t.Run("stranger cannot reopen", func(t *testing.T) {
		other := &actor.Actor{ID: "someone-else", Role: actor.RoleUser}
		_, err := Transition(receipt(StatusRejected, 2), StatusDraft, other, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
	})

	t.Run("posted receipt cannot be reopened", func(t *testing.T) {
		_, err := Transition(receipt(StatusPosted, 2), StatusDraft, managerActor(), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	})

	t.Run("posted transfer can be reopened", func(t *testing.T) {
		doc := DocumentState{Kind: KindTransfer, Status: StatusPosted, OwnerID: "owner-1", LineCount: 2}
		res, err := Transition(doc, StatusDraft, ownerActor(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, res.Status)
		require.NotNil(t, res.LineStatus)
		assert.Equal(t, LinePending, *res.LineStatus)
		assert.True(t, res.ClearQC)
		assert.False(t, res.ClearRejection)
	})
}

func TestTransitionPost(t *testing.T) {
	res, err := Transition(receipt(StatusQCApproved, 2), StatusPosted, qcActor(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, res.Status)
	assert.Nil(t, res.LineStatus)
}

func TestTransitionUnknownEdges(t *testing.T) {
	edges := []struct {
		from, to Status
	}{
		{StatusDraft, StatusQCApproved},
		{StatusDraft, StatusPosted},
		{StatusSubmitted, StatusPosted},
		{StatusQCApproved, StatusDraft},
		{StatusQCApproved, StatusRejected},
		{StatusPosted, StatusSubmitted},
		{StatusRejected, StatusSubmitted},
	}

	for _, e := range edges {
		_, err := Transition(receipt(e.from, 2), e.to, managerActor(), "reason")
		assert.Truef(t, errors.Is(err, errors.ErrInvalidTransition),
			"%s -> %s should be an invalid transition, got %v", e.from, e.to, err)
	}
}

func TestEditable(t *testing.T) {
	assert.True(t, Editable(StatusDraft))
	assert.False(t, Editable(StatusSubmitted))
	assert.False(t, Editable(StatusPosted))
}
