// Package recorder stores HAL readings in SQLite and answers queries for the
// latest stored value of a capability.
package recorder

import (
	"context"
	"encoding/json"
	"errors"

	"bme280-go/bus"
	"bme280-go/errcode"
	"bme280-go/types"

	logger "github.com/d2r2/go-logger"
)

var lg = logger.NewPackageLogger("recorder", logger.InfoLevel)

var (
	topicConfig = bus.T("config", "recorder")
	topicValues = bus.T("hal", "cap", bus.Single, bus.Single, "value")
	// TopicLatest answers requests with payload {"kind": "...", "id": n}.
	TopicLatest = bus.T("recorder", "latest")
)

var errEmpty = errors.New("empty payload")

// Config is expected on config/recorder.
type Config struct {
	Path string `json:"path"`
}

// Query is the payload of a TopicLatest request.
type Query struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

type Service struct {
	conn  *bus.Connection
	store *Store
	path  string
}

func New(conn *bus.Connection) *Service {
	return &Service{conn: conn}
}

// Run records until ctx is done. Nothing is stored before a config arrives.
func (s *Service) Run(ctx context.Context) error {
	cfgSub := s.conn.Subscribe(topicConfig)
	valSub := s.conn.Subscribe(topicValues)
	qSub := s.conn.Subscribe(TopicLatest)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(valSub)
	defer s.conn.Unsubscribe(qSub)
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-cfgSub.Channel():
			var cfg Config
			if err := decode(m.Payload, &cfg); err != nil || cfg.Path == "" {
				lg.Errorf("bad recorder config %v: %v", m.Payload, err)
				continue
			}
			if err := s.open(cfg.Path); err != nil {
				lg.Errorf("open %s: %v", cfg.Path, err)
			}
		case m := <-valSub.Channel():
			s.record(m)
		case m := <-qSub.Channel():
			s.answer(m)
		}
	}
}

func (s *Service) open(path string) error {
	if s.store != nil && s.path == path {
		return nil
	}
	st, err := Open(path)
	if err != nil {
		return err
	}
	s.close()
	s.store, s.path = st, path
	lg.Infof("recording to %s", path)
	return nil
}

func (s *Service) close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		lg.Errorf("close %s: %v", s.path, err)
	}
	s.store, s.path = nil, ""
}

func (s *Service) record(m *bus.Message) {
	if s.store == nil || len(m.Topic) != 5 {
		return
	}
	kind, _ := m.Topic[2].(string)
	id, ok := m.Topic[3].(int)
	if !ok {
		return
	}
	r, ok := rowOf(kind, id, m.Payload)
	if !ok {
		lg.Debugf("skip %s: %T", m.Topic, m.Payload)
		return
	}
	if err := s.store.Insert(r); err != nil {
		lg.Errorf("insert %s: %v", m.Topic, err)
	}
}

func (s *Service) answer(m *bus.Message) {
	if !m.CanReply() {
		return
	}
	if s.store == nil {
		s.conn.Reply(m, types.ErrorReply{Error: "not_configured"}, false)
		return
	}
	var q Query
	if err := decode(m.Payload, &q); err != nil || q.Kind == "" {
		s.conn.Reply(m, types.ErrorReply{Error: string(errcode.InvalidPayload)}, false)
		return
	}
	r, err := s.store.Latest(q.Kind, q.ID)
	switch {
	case errors.Is(err, ErrNoReading):
		s.conn.Reply(m, types.ErrorReply{Error: "no_reading"}, false)
	case err != nil:
		lg.Errorf("latest %s/%d: %v", q.Kind, q.ID, err)
		s.conn.Reply(m, types.ErrorReply{Error: string(errcode.IOError)}, false)
	default:
		s.conn.Reply(m, r, false)
	}
}

// rowOf maps a typed value payload onto a row.
func rowOf(kind string, id int, p any) (Row, bool) {
	r := Row{Kind: kind, CapID: id}
	switch v := p.(type) {
	case types.TemperatureValue:
		r.TsMs, r.Value = v.TsMs, int64(v.DeciC)
	case types.HumidityValue:
		r.TsMs, r.Value = v.TsMs, int64(v.RHx100)
	case types.PressureValue:
		r.TsMs, r.Value = v.TsMs, int64(v.DeciPa)
	default:
		return Row{}, false
	}
	return r, true
}

func decode(p any, dst any) error {
	if p == nil {
		return errEmpty
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
