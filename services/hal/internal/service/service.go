// services/hal/internal/service/service.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"bme280-go/bus"
	"bme280-go/errcode"
	"bme280-go/services/hal/internal/consts"
	"bme280-go/services/hal/internal/halcore"
	"bme280-go/services/hal/internal/halerr"
	"bme280-go/services/hal/internal/registry"
	"bme280-go/services/hal/internal/util"
	"bme280-go/services/hal/internal/worker"
	"bme280-go/types"

	logger "github.com/d2r2/go-logger"
	"go.uber.org/multierr"
)

var lg = logger.NewPackageLogger("hal", logger.InfoLevel)

// BusProvider opens the buses named in config. It must also satisfy
// halcore.I2CBusFactory for the buses it has opened.
type BusProvider interface {
	halcore.I2CBusFactory
	Open(cfg types.BusConfig) error
}

type devEntry struct {
	adaptor halcore.Adaptor
	caps    map[string]int // kind -> numeric capability id
	busID   string
}

type capKey struct {
	kind string
	id   int
}

type Service struct {
	conn  *bus.Connection
	buses BusProvider

	workers  map[string]*worker.MeasureWorker // busID -> worker
	busLocks map[string]*sync.Mutex
	results  chan halcore.Result

	devices map[string]devEntry

	capToDev  map[capKey]string // (kind,id) -> devID
	nextCapID map[string]int

	devPeriod  map[string]time.Duration
	devNextDue map[string]time.Time

	timer *time.Timer
}

var (
	topicConfigHAL = bus.Topic{consts.TokConfig, consts.TokHAL}
	topicCtrl      = bus.Topic{consts.TokHAL, consts.TokCapability, "+", "+", consts.TokControl, "+"}

	minPeriod = consts.MinPeriodMs * time.Millisecond
	maxPeriod = consts.MaxPeriodMs * time.Millisecond
)

func New(conn *bus.Connection, buses BusProvider) *Service {
	return &Service{
		conn:       conn,
		buses:      buses,
		workers:    map[string]*worker.MeasureWorker{},
		busLocks:   map[string]*sync.Mutex{},
		results:    make(chan halcore.Result, 64),
		devices:    map[string]devEntry{},
		capToDev:   map[capKey]string{},
		nextCapID:  map[string]int{},
		devPeriod:  map[string]time.Duration{},
		devNextDue: map[string]time.Time{},
	}
}

// Run serves config and control requests until ctx is done. It returns only
// after every bus worker has stopped, so callers may close the buses.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigHAL)
	ctrlSub := s.conn.Subscribe(topicCtrl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		util.DrainTimer(s.timer)
	}

	for {
		// arm timer
		if next := s.earliestDevDue(); next.IsZero() {
			util.ResetTimer(s.timer, time.Hour)
		} else {
			util.ResetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			for _, w := range s.workers {
				w.Wait()
			}
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_wrong_type", err)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				lg.Errorf("apply config: %v", err)
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

func decodeConfig(p any) (types.HALConfig, error) {
	switch v := p.(type) {
	case types.HALConfig:
		return v, nil
	case *types.HALConfig:
		return *v, nil
	}
	var cfg types.HALConfig
	err := util.DecodeJSON(p, &cfg)
	return cfg, err
}

func (s *Service) applyConfig(ctx context.Context, cfg types.HALConfig) error {
	var errs []error
	for _, bc := range cfg.Buses {
		if _, ok := s.buses.ByID(bc.ID); ok {
			continue
		}
		if err := s.buses.Open(bc); err != nil {
			errs = append(errs, errcode.Wrap(errcode.UnknownBus, bc.ID, err))
			continue
		}
		lg.Infof("bus %s opened (%s)", bc.ID, bc.Driver)
	}

	seen := map[string]struct{}{}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		if _, exists := s.devices[d.ID]; exists {
			continue
		}

		b, ok := registry.Lookup(d.Type)
		if !ok {
			errs = append(errs, errcode.Wrap(errcode.UnknownDevice, d.ID,
				util.Errf("%w %q (have %v)", halerr.ErrUnknownType, d.Type, registry.Types())))
			continue
		}

		out, err := b.Build(registry.BuildInput{
			Ctx:      ctx,
			Buses:    s.buses,
			DeviceID: d.ID,
			Type:     d.Type,
			Params:   d.Params,
			BusID:    d.Bus,
			BusLock:  s.busLock(d.Bus),
		})
		if err != nil {
			errs = append(errs, errcode.Wrap(errcode.InvalidParams, d.ID, err))
			continue
		}

		if out.BusID != "" {
			if _, ok := s.workers[out.BusID]; !ok {
				w := worker.New(out.BusID, halcore.WorkerConfig{}, s.results)
				w.Start(ctx)
				s.workers[out.BusID] = w
			}
		}

		ad := out.Adaptor
		entry := devEntry{adaptor: ad, busID: out.BusID, caps: map[string]int{}}

		for _, ci := range ad.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(ci.Kind, id, consts.TokInfo, ci.Info)
			s.pubRet(ci.Kind, id, consts.TokState,
				types.CapabilityState{Link: types.LinkDown, TS: time.Now()})
		}
		s.devices[d.ID] = entry
		lg.Infof("device %s (%s) on %s", d.ID, d.Type, out.BusID)

		if out.SampleEvery > 0 {
			s.devPeriod[d.ID] = util.ClampDuration(out.SampleEvery, minPeriod, maxPeriod)
			// First reading shortly after configuration.
			s.devNextDue[d.ID] = time.Now().Add(minPeriod)
		}
	}

	// Tidy-up devices not in config
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		for kind, id := range ent.caps {
			s.pubRet(kind, id, consts.TokInfo, nil)
			s.pubRet(kind, id, consts.TokState, types.CapabilityState{Link: types.LinkDown, TS: time.Now()})
			delete(s.capToDev, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
		delete(s.devPeriod, devID)
		delete(s.devNextDue, devID)
		lg.Infof("device %s removed", devID)
	}
	return multierr.Combine(errs...)
}

func (s *Service) busLock(busID string) sync.Locker {
	if busID == "" {
		return nil
	}
	l, ok := s.busLocks[busID]
	if !ok {
		l = &sync.Mutex{}
		s.busLocks[busID] = l
	}
	return l
}

// ---- control ----

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kind == "" {
		s.replyErr(msg, string(errcode.InvalidTopic))
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, string(errcode.UnknownCapability))
		return
	}
	method, _ := msg.Topic[5].(string)

	switch method {
	case consts.CtrlReadNow:
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, time.Now())
			s.conn.Reply(msg, types.ReadNowAck{OK: true}, false)
		} else {
			s.replyErr(msg, string(errcode.Busy))
		}
	case consts.CtrlSetRate:
		p, ok := parseRate(msg.Payload)
		if !ok {
			s.replyErr(msg, halerr.ErrInvalidPeriod.Error())
			return
		}
		s.devPeriod[devID] = util.ClampDuration(p, minPeriod, maxPeriod)
		s.bumpDevNext(devID, time.Now())
		s.conn.Reply(msg, types.SetRateAck{OK: true, Period: s.devPeriod[devID]}, false)
	default:
		ent := s.devices[devID]
		if ent.adaptor == nil {
			s.replyErr(msg, halerr.ErrNoAdaptor.Error())
			return
		}
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		switch {
		case err == nil:
			s.conn.Reply(msg, res, false)
		case errors.Is(err, halcore.ErrUnsupported):
			s.replyErr(msg, halerr.ErrUnsupported.Error())
		default:
			s.replyErr(msg, string(errcode.MapDriverErr(err)))
		}
	}
}

// parseRate accepts types.SetRate or {"period_ms": n}.
func parseRate(p any) (time.Duration, bool) {
	switch v := p.(type) {
	case types.SetRate:
		return v.Period, v.Period > 0
	case *types.SetRate:
		return v.Period, v != nil && v.Period > 0
	}
	var m struct {
		PeriodMs int `json:"period_ms"`
	}
	if err := util.DecodeJSON(p, &m); err != nil || m.PeriodMs <= 0 {
		return 0, false
	}
	return time.Duration(m.PeriodMs) * time.Millisecond, true
}

// ---- measurement helpers ----

func (s *Service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(halcore.MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *Service) bumpDevNext(devID string, from time.Time) {
	period, ok := s.devPeriod[devID]
	if !ok {
		return
	}
	s.devNextDue[devID] = from.Add(util.ClampDuration(period, minPeriod, maxPeriod))
}

func (s *Service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

// ---- results ----

func (s *Service) handleResult(r halcore.Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := time.Now()

	if r.Err != nil {
		code := errcode.MapDriverErr(r.Err)
		lg.Errorf("%s: %v", r.ID, r.Err)
		for kind, id := range ent.caps {
			s.pubRet(kind, id, consts.TokState, types.CapabilityState{
				Link:  types.LinkDegraded,
				TS:    now,
				Error: string(code),
			})
		}
		return
	}
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(capTopicInt(rd.Kind, id, consts.TokValue), rd.Payload, false))
		s.pubRet(rd.Kind, id, consts.TokState, types.CapabilityState{Link: types.LinkUp, TS: now})
	}
}

// ---- bus helpers & utils ----

func (s *Service) publishState(level, status string, err error) {
	pl := types.HALState{Level: level, Status: status, TS: time.Now()}
	if err != nil {
		pl.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{consts.TokHAL, consts.TokState}, pl, true))
}

func (s *Service) replyErr(req *bus.Message, code string) {
	if code == "" {
		code = string(errcode.Error)
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: code}, false)
}

func capTopicInt(kind string, id int, suffix string) bus.Topic {
	return bus.Topic{consts.TokHAL, consts.TokCapability, kind, id, suffix}
}

func (s *Service) pubRet(kind string, id int, suffix string, p any) {
	s.conn.Publish(s.conn.NewMessage(capTopicInt(kind, id, suffix), p, true))
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
