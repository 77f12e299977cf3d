package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-fulfillment/internal/broker"
	"github.com/jcmexdev/order-fulfillment/internal/docstore"
	docsqlite "github.com/jcmexdev/order-fulfillment/internal/docstore/sqlite"
	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance"
	instsqlite "github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance/sqlite"
	"github.com/jcmexdev/order-fulfillment/internal/submission"
)

type fakeQueue struct {
	published  atomic.Int32
	publishErr error
}

func (q *fakeQueue) Publish(context.Context, []byte, string) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published.Add(1)
	return nil
}
func (q *fakeQueue) Consume(context.Context) (*broker.Message, error)  { return nil, nil }
func (q *fakeQueue) DeadLetter(context.Context, *broker.Message) error { return nil }

type brokenDocs struct{}

func (brokenDocs) Create(context.Context, *docstore.Record) error { return errors.New("storage down") }
func (brokenDocs) Get(context.Context, int) (*docstore.Record, error) {
	return nil, errors.New("storage down")
}

// countingRepo counts status checks so tests can pin the single-check
// behavior of maxWait = 0.
type countingRepo struct {
	instance.Repository
	statusChecks atomic.Int32
}

func (r *countingRepo) GetStatus(ctx context.Context, id string) (instance.RuntimeStatus, error) {
	r.statusChecks.Add(1)
	return r.Repository.GetStatus(ctx, id)
}

type testEnv struct {
	instances instance.Repository
	docs      docstore.Repository
	runner    *orchestrator.Runner
	queue     *fakeQueue
	router    http.Handler
}

func newTestEnv(t *testing.T, maxWait, interval time.Duration) *testEnv {
	t.Helper()

	instances, err := instsqlite.Open(filepath.Join(t.TempDir(), "instances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = instances.Close() })

	docs, err := docsqlite.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	return buildEnv(t, instances, docs, maxWait, interval)
}

func buildEnv(t *testing.T, instances instance.Repository, docs docstore.Repository, maxWait, interval time.Duration) *testEnv {
	t.Helper()

	runner := orchestrator.NewRunner(instances, orchestrator.NewWorkflow(orchestrator.NewCommitOrderActivity(docs, 0)))
	queue := &fakeQueue{}
	handler := NewHandler(instances, runner, submission.NewProducer(queue), maxWait, interval)

	return &testEnv{
		instances: instances,
		docs:      docs,
		runner:    runner,
		queue:     queue,
		router:    NewRouter(handler),
	}
}

func orderBody(t *testing.T, orderID int) *bytes.Reader {
	t.Helper()
	req := fulfillment.Request{
		RequestID:  "req-1",
		OrderID:    orderID,
		Items:      []fulfillment.Item{{ItemID: 1, Quantity: 2, UnitPrice: 5}},
		FinalPrice: 10,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func (e *testEnv) submit(t *testing.T, orderID int) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", orderBody(t, orderID)))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestSubmitNewOrderIsAccepted(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[AcceptedResponse](t, rec)
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, "/api/orders/42/status", resp.StatusQueryGetURI)
	assert.Contains(t, resp.Message, "accepted")

	env.runner.Wait()

	statusRec := httptest.NewRecorder()
	env.router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/orders/42/status", nil))
	require.Equal(t, http.StatusOK, statusRec.Code)

	status := decode[StatusResponse](t, statusRec)
	assert.Equal(t, string(instance.StatusCompleted), status.RuntimeStatus)
	assert.Equal(t, "Order 42 saved.", status.Output)
}

func TestResubmitWhilePendingStartsNoSecondInstance(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)
	ctx := context.Background()

	// A Pending instance with no runner attached: simulates an order
	// whose orchestration has been registered but not yet executed.
	require.NoError(t, env.instances.Create(ctx, "42", nil))

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusAccepted, rec.Code, "still pending after the (zero) wait window")

	status, err := env.instances.GetStatus(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusPending, status, "resubmission must not disturb the live instance")
}

func TestResubmitCompletedShortCircuits(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)

	env.submit(t, 42)
	env.runner.Wait()

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ResultResponse](t, rec)
	assert.Equal(t, "Order 42 already added. No new record created.", resp.Message)

	rec2, err := env.docs.Get(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, rec2, "the committed record is untouched")
}

func TestBoundedWaitSeesCompletion(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, time.Second)
	ctx := context.Background()

	require.NoError(t, env.instances.Create(ctx, "42", nil))
	require.NoError(t, env.instances.MarkRunning(ctx, "42"))

	// Complete the instance while the gateway is inside its wait loop.
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = env.instances.Complete(ctx, "42", "Order 42 saved.")
	}()

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order 42 saved.", decode[ResultResponse](t, rec).Message)
}

func TestFailedInstanceGetsOneRetry(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, time.Second)
	ctx := context.Background()

	require.NoError(t, env.instances.Create(ctx, "42", nil))
	require.NoError(t, env.instances.Fail(ctx, "42", "storage outage"))

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order 42 saved on retry.", decode[ResultResponse](t, rec).Message)

	committed, err := env.docs.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, committed)
}

func TestRetryFailureSurfacesServerError(t *testing.T) {
	instances, err := instsqlite.Open(filepath.Join(t.TempDir(), "instances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = instances.Close() })

	env := buildEnv(t, instances, brokenDocs{}, 0, time.Second)
	ctx := context.Background()

	require.NoError(t, env.instances.Create(ctx, "42", nil))
	require.NoError(t, env.instances.Fail(ctx, "42", "storage outage"))

	rec := env.submit(t, 42)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "Order 42 retry failed.")
}

func TestMaxWaitZeroDoesExactlyOneCheck(t *testing.T) {
	instances, err := instsqlite.Open(filepath.Join(t.TempDir(), "instances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = instances.Close() })
	counting := &countingRepo{Repository: instances}

	docs, err := docsqlite.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	env := buildEnv(t, counting, docs, 0, time.Second)
	ctx := context.Background()

	require.NoError(t, env.instances.Create(ctx, "42", nil))
	require.NoError(t, counting.Repository.MarkRunning(ctx, "42"))
	counting.statusChecks.Store(0)

	start := time.Now()
	rec := env.submit(t, 42)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusAccepted, rec.Code)
	// One check to branch on the status, one inside the wait loop.
	assert.Equal(t, int32(2), counting.statusChecks.Load())
	assert.Less(t, elapsed, 500*time.Millisecond, "no sleep when maxWait is zero")
}

func TestWaitParametersAreClamped(t *testing.T) {
	h := NewHandler(nil, nil, nil, -5*time.Second, 0)
	assert.Equal(t, time.Duration(0), h.maxWait, "negative wait clamps to single check")
	assert.Equal(t, time.Second, h.interval, "interval floor is one second")
}

func TestTerminateEndpoint(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)
	ctx := context.Background()

	require.NoError(t, env.instances.Create(ctx, "42", nil))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/42/terminate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	status, err := env.instances.GetStatus(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusTerminated, status)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/42/terminate", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/99/terminate", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitRejectsInvalidEnvelope(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)

	req := fulfillment.Request{
		OrderID:    42,
		Items:      []fulfillment.Item{{ItemID: 1, Quantity: 1, UnitPrice: 5}},
		FinalPrice: 999, // violates the final-price invariant
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutPublishesEnvelope(t *testing.T) {
	env := newTestEnv(t, 0, time.Second)

	body, err := json.Marshal(CheckoutRequest{
		OrderID: 42,
		BuyerID: "buyer-1",
		Items:   []CheckoutItemDTO{{ItemID: 1, Quantity: 2, UnitPrice: 5}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[CheckoutResponse](t, rec)
	assert.Equal(t, 42, resp.OrderID)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, int32(1), env.queue.published.Load())

	t.Run("empty basket rejected", func(t *testing.T) {
		body, err := json.Marshal(CheckoutRequest{OrderID: 43})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("broker outage is not a client error", func(t *testing.T) {
		env.queue.publishErr = errors.New("connection refused")
		defer func() { env.queue.publishErr = nil }()

		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewReader(body)))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "checkout_unavailable", decode[ErrorResponse](t, rec).Error)
	})
}
