package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CodesGenerated counts issued attendance codes by department.
var CodesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rollcall_codes_generated_total",
	Help: "Attendance codes generated.",
}, []string{"department"})

// Submissions counts submit decisions by outcome reason.
var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rollcall_submissions_total",
	Help: "Submit decisions by reason.",
}, []string{"reason"})

// ActiveCodes tracks the number of currently live codes.
var ActiveCodes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rollcall_active_codes",
	Help: "Codes currently accepting submissions.",
})
