package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/layout"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/util"
)

// Server hosts the mango-display control socket and serves requests.
type Server struct {
	ctrl       *controller.Controller
	metrics    *metrics.Collector
	logger     *util.Logger
	reload     func(reason string) error
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new control server bound to the default socket path.
func NewServer(ctrl *controller.Controller, collector *metrics.Collector, logger *util.Logger, reload func(reason string) error) (*Server, error) {
	path, err := DefaultSocketPath()
	if err != nil {
		return nil, err
	}
	return &Server{
		ctrl:       ctrl,
		metrics:    collector,
		logger:     logger,
		reload:     reload,
		socketPath: path,
	}, nil
}

// SocketPath reports where the server listens.
func (s *Server) SocketPath() string { return s.socketPath }

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	s.logger.Debugf("control request %s", req.Action)
	data, err := s.dispatch(ctx, req)
	if err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, data)
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	p := params(req.Params)
	switch req.Action {
	case ActionOutputsList:
		return NewSessionStatus(s.ctrl), nil
	case ActionOutputSelect:
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		if err := s.ctrl.Select(name); err != nil {
			return nil, err
		}
		return NewSessionStatus(s.ctrl), nil
	case ActionOutputSet:
		return s.handleOutputSet(p)
	case ActionOutputAdd:
		return s.handleOutputAdd(p)
	case ActionOutputRemove:
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		if err := s.ctrl.RemoveOutput(name); err != nil {
			return nil, err
		}
		return NewSessionStatus(s.ctrl), nil
	case ActionDragBegin:
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		return nil, s.ctrl.BeginDrag(name)
	case ActionDragUpdate:
		x, errX := p.float("x")
		y, errY := p.float("y")
		if err := errors.Join(errX, errY); err != nil {
			return nil, err
		}
		pos, err := s.ctrl.UpdateDrag(layout.Point{X: x, Y: y})
		return positionResult(pos), err
	case ActionDragEnd:
		pos, err := s.ctrl.EndDrag()
		if err != nil {
			return nil, err
		}
		return positionResult(pos), nil
	case ActionDragCancel:
		return nil, s.ctrl.CancelDrag()
	case ActionPreview:
		return nil, s.ctrl.Preview(ctx)
	case ActionSave:
		res, err := s.ctrl.Save(ctx)
		if err != nil {
			return nil, err
		}
		return SaveResult{Path: res.Path, Rules: res.Rules, Changed: res.Changed, Diff: res.Diff}, nil
	case ActionReload:
		if err := s.ctrl.Reload(ctx); err != nil {
			return nil, err
		}
		return NewSessionStatus(s.ctrl), nil
	case ActionSettingsReload:
		if s.reload == nil {
			return nil, errors.New("settings reload not supported")
		}
		return nil, s.reload("control request")
	case ActionStats:
		return s.metrics.Snapshot(), nil
	case ActionHistory:
		return HistoryResult{Entries: s.ctrl.History()}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

func (s *Server) handleOutputSet(p params) (any, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	field, _ := p["field"].(string)
	var out state.Output
	switch field {
	case FieldResolution:
		w, errW := p.int("width")
		h, errH := p.int("height")
		if err := errors.Join(errW, errH); err != nil {
			return nil, err
		}
		out, err = s.ctrl.SetResolution(name, w, h)
	case FieldMode:
		idx, perr := p.int("index")
		if perr != nil {
			return nil, perr
		}
		out, err = s.ctrl.SetMode(name, idx)
	case FieldRefresh:
		hz, perr := p.float("hz")
		if perr != nil {
			return nil, perr
		}
		out, err = s.ctrl.SetRefresh(name, hz)
	case FieldScale:
		f, perr := p.float("factor")
		if perr != nil {
			return nil, perr
		}
		out, err = s.ctrl.SetScale(name, f)
	case FieldScaleStep:
		steps, perr := p.int("steps")
		if perr != nil {
			return nil, perr
		}
		out, err = s.ctrl.StepScale(name, steps)
	case FieldRotation:
		deg, perr := p.int("degrees")
		if perr != nil {
			return nil, perr
		}
		flipped, _ := p["flipped"].(bool)
		out, err = s.ctrl.SetRotation(name, deg, flipped)
	case FieldPosition:
		x, errX := p.int("x")
		y, errY := p.int("y")
		if err := errors.Join(errX, errY); err != nil {
			return nil, err
		}
		out, err = s.ctrl.SetPosition(name, x, y)
	case FieldNudge:
		dx, errX := p.int("dx")
		dy, errY := p.int("dy")
		if err := errors.Join(errX, errY); err != nil {
			return nil, err
		}
		out, err = s.ctrl.Nudge(name, dx, dy)
	case FieldEnabled:
		enabled, ok := p["enabled"].(bool)
		if !ok {
			return nil, errors.New("enabled must be a boolean")
		}
		out, err = s.ctrl.SetEnabled(name, enabled)
	default:
		return nil, fmt.Errorf("unknown field %q", field)
	}
	if err != nil {
		return nil, err
	}
	return NewOutputInfo(out), nil
}

func (s *Server) handleOutputAdd(p params) (any, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	w, errW := p.int("width")
	h, errH := p.int("height")
	hz, errR := p.float("refresh")
	if err := errors.Join(errW, errH, errR); err != nil {
		return nil, err
	}
	enabled := true
	if v, ok := p["enabled"].(bool); ok {
		enabled = v
	}
	mode := state.Mode{Width: w, Height: h, Refresh: state.RefreshFromHz(hz)}
	out, err := s.ctrl.AddVirtualOutput(name, mode, enabled)
	if err != nil {
		return nil, err
	}
	return NewOutputInfo(out), nil
}

func positionResult(pos state.Position) PositionResult {
	return PositionResult{X: pos.X, Y: pos.Y}
}

type params map[string]any

func (p params) name() (string, error) {
	name, _ := p["name"].(string)
	if name == "" {
		return "", errors.New("missing output name")
	}
	return name, nil
}

func (p params) float(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("missing %s", key)
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func (p params) int(key string) (int, error) {
	f, err := p.float(key)
	if err != nil {
		return 0, err
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s is out of range", key)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(f), nil
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
