package metrics

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry          *prometheus.Registry
	OrdersCreated     prometheus.Counter
	OrdersCancelled   prometheus.Counter
	PaymentsVerified  prometheus.Counter
	SignatureFailures prometheus.Counter
	Refunds           *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders placed successfully.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Orders cancelled by their owner.",
		}),
		PaymentsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_verified_total",
			Help: "Payments whose gateway signature verified.",
		}),
		SignatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_signature_failures_total",
			Help: "Payment callbacks rejected for a bad signature.",
		}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refunds processed, by resulting payment status.",
		}, []string{"status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}

	reg.MustRegister(
		m.OrdersCreated,
		m.OrdersCancelled,
		m.PaymentsVerified,
		m.SignatureFailures,
		m.Refunds,
		m.HTTPRequests,
	)

	return m
}

// Middleware counts every request by its matched route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		m.HTTPRequests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()

		return err
	}
}
