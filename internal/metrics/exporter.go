// Package metrics exports kern trace events as Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"tickos/internal/kern"
)

// Exporter adapts the kern event stream to Prometheus collectors.
type Exporter struct {
	ticksTotal       prom.Counter
	reschedulesTotal prom.Counter
	switchesTotal    prom.Counter
	sleepsTotal      prom.Counter
	wakesTotal       prom.Counter
	faultsTotal      prom.Counter
	tasksRegistered  prom.Gauge
}

var _ kern.Observer = (*Exporter)(nil)

// NewExporter creates and registers the collectors.
func NewExporter(namespace string, reg prom.Registerer) (*Exporter, error) {
	if namespace == "" {
		namespace = "tickos"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	ticks := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Total number of timer tick events processed.",
	})
	resched := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "reschedules_total",
		Help:      "Total number of reschedule invocations.",
	})
	switches := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "context_switches_total",
		Help:      "Total number of reschedules that signaled a context switch.",
	})
	sleeps := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "sleeps_total",
		Help:      "Total number of voluntary waits entered.",
	})
	wakes := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "wakes_total",
		Help:      "Total number of wait countdowns that expired.",
	})
	faults := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "faults_total",
		Help:      "Total number of fatal scheduler faults.",
	})
	registered := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_registered",
		Help:      "Number of registered tasks, idle included.",
	})

	var err error
	if ticks, err = registerCollector(reg, ticks); err != nil {
		return nil, err
	}
	if resched, err = registerCollector(reg, resched); err != nil {
		return nil, err
	}
	if switches, err = registerCollector(reg, switches); err != nil {
		return nil, err
	}
	if sleeps, err = registerCollector(reg, sleeps); err != nil {
		return nil, err
	}
	if wakes, err = registerCollector(reg, wakes); err != nil {
		return nil, err
	}
	if faults, err = registerCollector(reg, faults); err != nil {
		return nil, err
	}
	if registered, err = registerCollector(reg, registered); err != nil {
		return nil, err
	}

	return &Exporter{
		ticksTotal:       ticks,
		reschedulesTotal: resched,
		switchesTotal:    switches,
		sleepsTotal:      sleeps,
		wakesTotal:       wakes,
		faultsTotal:      faults,
		tasksRegistered:  registered,
	}, nil
}

// Observe implements kern.Observer.
func (e *Exporter) Observe(ev kern.Event) {
	if e == nil {
		return
	}
	switch ev.Kind {
	case kern.EventInit:
		e.tasksRegistered.Set(1) // idle
	case kern.EventRegister:
		e.tasksRegistered.Inc()
	case kern.EventTick:
		e.ticksTotal.Inc()
	case kern.EventSleep:
		e.sleepsTotal.Inc()
	case kern.EventWake:
		e.wakesTotal.Inc()
	case kern.EventDispatch:
		e.reschedulesTotal.Inc()
		if ev.Switched {
			e.switchesTotal.Inc()
		}
	case kern.EventFault:
		e.faultsTotal.Inc()
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
