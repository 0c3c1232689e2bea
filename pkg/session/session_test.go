package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/storekey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records calls and lets tests inject failures per operation.
type fakeGateway struct {
	mu sync.Mutex

	nextUploadID   int
	completedParts map[string][]blobstore.Part
	aborted        map[string]bool
	objects        map[string]bool

	failComplete error
	failAbort    error
	failCreate   error

	// When set, CompleteMultipart signals completeStarted and then parks
	// until completeRelease closes, holding the caller mid-gateway-call.
	completeStarted chan struct{}
	completeRelease chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		completedParts: make(map[string][]blobstore.Part),
		aborted:        make(map[string]bool),
		objects:        make(map[string]bool),
	}
}

func (g *fakeGateway) CreateMultipart(_ context.Context, key, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate != nil {
		return "", g.failCreate
	}
	g.nextUploadID++
	return fmt.Sprintf("upload-%d", g.nextUploadID), nil
}

func (g *fakeGateway) SignPart(_ context.Context, key, uploadID string, partNumber int, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?uploadId=%s&partNumber=%d", key, uploadID, partNumber), nil
}

func (g *fakeGateway) CompleteMultipart(_ context.Context, key, uploadID string, parts []blobstore.Part) (string, error) {
	if g.completeStarted != nil {
		close(g.completeStarted)
		<-g.completeRelease
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failComplete != nil {
		return "", g.failComplete
	}
	g.completedParts[uploadID] = append([]blobstore.Part(nil), parts...)
	g.objects[key] = true
	return "test-bucket/" + key, nil
}

func (g *fakeGateway) AbortMultipart(_ context.Context, _, uploadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAbort != nil {
		return g.failAbort
	}
	g.aborted[uploadID] = true
	return nil
}

func (g *fakeGateway) PutObject(_ context.Context, key string, _ io.Reader, _ int64, _ string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = true
	return "test-bucket/" + key, nil
}

func (g *fakeGateway) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/put/" + key, nil
}

func (g *fakeGateway) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/get/" + key, nil
}

func (g *fakeGateway) Exists(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.objects[key], nil
}

func (g *fakeGateway) Rename(_ context.Context, sourceKey, destKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sourceKey != destKey {
		delete(g.objects, sourceKey)
		g.objects[destKey] = true
	}
	return "test-bucket/" + destKey, nil
}

func (g *fakeGateway) EnsureBucket(_ context.Context) error { return nil }

var _ blobstore.Gateway = (*fakeGateway)(nil)

func newTestManager(gw blobstore.Gateway) *Manager {
	return NewManager(gw, nil, Config{EvictAfter: time.Hour})
}

func mustKey(t *testing.T) storekey.Key {
	t.Helper()
	key, err := storekey.Derive("acme", "projX", "final_grade.mov")
	require.NoError(t, err)
	return key
}

func TestMultipartHappyPath_SortsOutOfOrderParts(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, sess.State())

	for _, n := range []int{1, 2, 3} {
		url, err := mgr.SignPart(ctx, sess.UploadID(), n)
		require.NoError(t, err)
		assert.Contains(t, url, fmt.Sprintf("partNumber=%d", n))
	}

	location, err := mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{
		{PartNumber: 1, ETag: "etagA"},
		{PartNumber: 3, ETag: "etagC"},
		{PartNumber: 2, ETag: "etagB"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(location, "acme/projX/final_grade.mov"))
	assert.Equal(t, StateCompleted, sess.State())

	sent := gw.completedParts[sess.UploadID()]
	require.Len(t, sent, 3)
	assert.Equal(t, []blobstore.Part{
		{PartNumber: 1, ETag: "etagA"},
		{PartNumber: 2, ETag: "etagB"},
		{PartNumber: 3, ETag: "etagC"},
	}, sent)
}

func TestComplete_DropsMalformedEntries(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{
		{PartNumber: 2, ETag: "etagB"},
		{PartNumber: 0, ETag: "etagX"}, // missing part number
		{PartNumber: 1, ETag: ""},      // missing etag
		{PartNumber: 1, ETag: "etagA"},
	})
	require.NoError(t, err)

	sent := gw.completedParts[sess.UploadID()]
	assert.Equal(t, []blobstore.Part{
		{PartNumber: 1, ETag: "etagA"},
		{PartNumber: 2, ETag: "etagB"},
	}, sent)
}

func TestComplete_RetryableFromCompleting(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	parts := []blobstore.Part{{PartNumber: 1, ETag: "etagA"}}

	gw.failComplete = fmt.Errorf("%w: 503", blobstore.ErrUnavailable)
	_, err = mgr.Complete(ctx, sess.UploadID(), parts)
	require.Error(t, err)
	assert.Equal(t, StateCompleting, sess.State())

	gw.failComplete = nil
	location, err := mgr.Complete(ctx, sess.UploadID(), parts)
	require.NoError(t, err)
	assert.NotEmpty(t, location)
	assert.Equal(t, StateCompleted, sess.State())
}

func TestAbort_Idempotent(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	require.NoError(t, mgr.Abort(ctx, sess.UploadID()))
	assert.Equal(t, StateAborted, sess.State())

	// Second abort races with client retry logic; must be a no-op.
	require.NoError(t, mgr.Abort(ctx, sess.UploadID()))
	assert.Equal(t, StateAborted, sess.State())
}

func TestCompleted_RejectsFurtherTransitions(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{{PartNumber: 1, ETag: "etagA"}})
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{{PartNumber: 1, ETag: "etagA"}})
	assert.ErrorIs(t, err, ErrStateConflict)

	err = mgr.Abort(ctx, sess.UploadID())
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestAborted_RejectsComplete(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)
	require.NoError(t, mgr.Abort(ctx, sess.UploadID()))

	_, err = mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{{PartNumber: 1, ETag: "etagA"}})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestSignPart_Validation(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	for _, n := range []int{0, -1, 10001} {
		_, err := mgr.SignPart(ctx, sess.UploadID(), n)
		assert.ErrorIs(t, err, ErrInvalidPartNumber, "part number %d", n)
	}

	_, err = mgr.SignPart(ctx, "no-such-upload", 1)
	assert.ErrorIs(t, err, ErrUnknownSession)

	require.NoError(t, mgr.Abort(ctx, sess.UploadID()))
	_, err = mgr.SignPart(ctx, sess.UploadID(), 1)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestPutObject_SingleShot(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	key, err := storekey.Derive("acme", "projX", "report.pdf")
	require.NoError(t, err)

	location, err := mgr.PutObject(ctx, key, strings.NewReader("pdf bytes"), 9, "application/pdf", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(location, "acme/projX/report.pdf"))
}

func TestReapIdle_AbortsStaleSessions(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	stale, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	freshKey, err := storekey.Derive("acme", "projX", "other.mov")
	require.NoError(t, err)
	fresh, err := mgr.Start(ctx, freshKey, "tok-1", "video/quicktime")
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	reaped := mgr.ReapIdle(ctx, 30*time.Minute)
	assert.Equal(t, []string{stale.UploadID()}, reaped)
	assert.Equal(t, StateAborted, stale.State())
	assert.Equal(t, StateOpen, fresh.State())
}

func TestReapIdle_DoesNotStallRegistryBehindGatewayCall(t *testing.T) {
	gw := newFakeGateway()
	gw.completeStarted = make(chan struct{})
	gw.completeRelease = make(chan struct{})
	mgr := newTestManager(gw)
	ctx := context.Background()

	busy, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	otherKey, err := storekey.Derive("acme", "projX", "other.mov")
	require.NoError(t, err)
	other, err := mgr.Start(ctx, otherKey, "tok-1", "video/quicktime")
	require.NoError(t, err)

	// Park one session's completion inside the gateway call; it holds its
	// session lock the whole time.
	completeDone := make(chan error, 1)
	go func() {
		_, err := mgr.Complete(ctx, busy.UploadID(), []blobstore.Part{{PartNumber: 1, ETag: "etagA"}})
		completeDone <- err
	}()
	<-gw.completeStarted

	// A reap tick racing that completion must not freeze the registry.
	reapDone := make(chan struct{})
	go func() {
		mgr.ReapIdle(ctx, 30*time.Minute)
		close(reapDone)
	}()

	got := make(chan error, 1)
	go func() {
		_, err := mgr.Get(other.UploadID())
		got <- err
	}()
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Get for an unrelated session blocked behind another session's gateway call")
	}

	close(gw.completeRelease)
	require.NoError(t, <-completeDone)
	<-reapDone
}

func TestStart_SurfacesStorageFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failCreate = fmt.Errorf("%w: connect refused", blobstore.ErrUnavailable)
	mgr := newTestManager(gw)

	_, err := mgr.Start(context.Background(), mustKey(t), "tok-1", "video/quicktime")
	require.Error(t, err)
	assert.True(t, errors.Is(err, blobstore.ErrUnavailable))
}

func TestCompleteAbort_MutuallyExclusive(t *testing.T) {
	gw := newFakeGateway()
	mgr := newTestManager(gw)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, mustKey(t), "tok-1", "video/quicktime")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var completeErr, abortErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, completeErr = mgr.Complete(ctx, sess.UploadID(), []blobstore.Part{{PartNumber: 1, ETag: "etagA"}})
	}()
	go func() {
		defer wg.Done()
		abortErr = mgr.Abort(ctx, sess.UploadID())
	}()
	wg.Wait()

	// Exactly one of the two wins; the loser gets a state conflict or,
	// for abort-after-abort, a no-op. Never both succeeding.
	state := sess.State()
	switch state {
	case StateCompleted:
		require.NoError(t, completeErr)
		assert.ErrorIs(t, abortErr, ErrStateConflict)
	case StateAborted:
		require.NoError(t, abortErr)
		assert.ErrorIs(t, completeErr, ErrStateConflict)
	default:
		t.Fatalf("session ended in non-terminal state %s", state)
	}
}
