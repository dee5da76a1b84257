package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/observability"
	"github.com/xraph/subledger/payment/memtoken"
	"github.com/xraph/subledger/store/memory"
)

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	factory := observability.NewPrometheusFactory()
	metrics := observability.NewMetricsExtension(factory)

	clk := clock.NewManual(1)
	tok := memtoken.New(clk)
	engine := subledger.New(memory.New(),
		subledger.WithClock(clk),
		subledger.WithAuthorizer(auth.AllowAll{}),
		subledger.WithPayment(tok),
		subledger.WithPlugin(metrics),
	)

	admin := id.NewPrincipal()
	require.NoError(t, engine.Init(ctx, admin, tok.ID(), id.NewPrincipal()))
	_, err := engine.CreatePlan(ctx, admin, 1, "basic", 10, 250)
	require.NoError(t, err)

	u := id.NewPrincipal()
	_, err = engine.Subscribe(ctx, u, 1)
	require.Error(t, err)

	require.NoError(t, tok.Mint(ctx, u, 1_000))
	require.NoError(t, tok.Approve(ctx, u, engine.Address(), 1_000, 1_000))
	_, err = engine.Subscribe(ctx, u, 1)
	require.NoError(t, err)
	clk.Set(11)
	_, err = engine.Renew(ctx, u)
	require.NoError(t, err)
	_, err = engine.SetPlanStatus(ctx, admin, 1, false)
	require.NoError(t, err)

	assert.Equal(t, 1.0, value(metrics.LedgerInitialized))
	assert.Equal(t, 1.0, value(metrics.PlanCreated))
	assert.Equal(t, 1.0, value(metrics.PlanDeactivated))
	assert.Equal(t, 0.0, value(metrics.PlanActivated))
	assert.Equal(t, 1.0, value(metrics.SubscriptionCreated))
	assert.Equal(t, 1.0, value(metrics.SubscriptionRenewed))
	assert.Equal(t, 1.0, value(metrics.ChargesDirect))
	assert.Equal(t, 1.0, value(metrics.ChargesDelegated))
	assert.Equal(t, 1.0, value(metrics.OperationsRejected))
	assert.Equal(t, 1.0, value(metrics.PaymentDeclined))
}

func value(c observability.Counter) float64 {
	return testutil.ToFloat64(c.(prometheus.Collector))
}

func TestPrometheusFactory(t *testing.T) {
	f := observability.NewPrometheusFactory()

	c := f.Counter("subledger.plan.created")
	c.Inc()
	c.Add(2)
	assert.Same(t, c, f.Counter("subledger.plan.created"))
	f.Histogram("subledger.payment.charged_amount").Observe(100)

	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subledger_plan_created_total 3")
	assert.Contains(t, rec.Body.String(), "subledger_payment_charged_amount_count 1")
}
