package natsstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	natsinternal "github.com/wehubfusion/Daedalus/internal/nats"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

func TestReplyErrorMapsSentinels(t *testing.T) {
	err := replyError("run.get", gjson.Parse(`{"code":"RUN_NOT_FOUND","message":"run 'abc' not found"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrRunNotFound))
	assert.Contains(t, err.Error(), "abc")

	err = replyError("experiment.get", gjson.Parse(`{"code":"EXPERIMENT_NOT_FOUND","message":"no such experiment"}`))
	assert.True(t, errors.Is(err, sdkerrors.ErrExperimentNotFound))
}

func TestReplyErrorKeepsServiceCode(t *testing.T) {
	err := replyError("run.create", gjson.Parse(`{"code":"QUOTA_EXCEEDED","message":"too many runs"}`))
	require.Error(t, err)

	var sdkErr *sdkerrors.Error
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, "QUOTA_EXCEEDED", sdkErr.Code)
}

func TestReplyErrorWithoutCode(t *testing.T) {
	err := replyError("run.end", gjson.Parse(`"something broke"`))
	require.Error(t, err)

	var sdkErr *sdkerrors.Error
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, "TRACKING_run.end", sdkErr.Code)
	assert.Contains(t, err.Error(), "something broke")
}

func TestDecodeRunProtectsParentTag(t *testing.T) {
	reply := []byte(`{"run":{"run_id":"child-1","experiment_id":"0","run_name":"fold-1",` +
		`"status":"RUNNING","lifecycle_stage":"active","start_time":"2026-08-27T00:00:00Z",` +
		`"tags":{"mlflow.parentRunId":"parent-1","mlflow.runName":"fold-1"}}}`)

	run, err := decodeRun(reply, "run")
	require.NoError(t, err)
	assert.Equal(t, "child-1", run.ID)
	assert.Equal(t, "parent-1", run.ParentRunID())
	assert.True(t, run.Tags.IsProtected(tracking.ParentRunIDTag))

	// Top-level runs stay unprotected.
	reply = []byte(`{"run":{"run_id":"parent-1","experiment_id":"0","run_name":"training",` +
		`"status":"RUNNING","lifecycle_stage":"active","start_time":"2026-08-27T00:00:00Z","tags":{}}}`)
	run, err = decodeRun(reply, "run")
	require.NoError(t, err)
	assert.False(t, run.Tags.IsProtected(tracking.ParentRunIDTag))
}

func TestDecodeRunMissingPayload(t *testing.T) {
	_, err := decodeRun([]byte(`{}`), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run")
}

func TestRequestWithoutConnection(t *testing.T) {
	store := Wrap(nil, natsinternal.DefaultConnectionConfig("nats://localhost:4222"), nil)

	_, err := store.GetRun(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrNotConnected))
}
