package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/ipc"
	"github.com/mango-display/mango-display/internal/layout"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/rules"
	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/util"
)

var (
	// ErrOverlap reports an edit that would make two enabled outputs overlap.
	ErrOverlap = errors.New("outputs would overlap")
	// ErrBusy reports that another external call or drag is in progress.
	ErrBusy = errors.New("controller busy")
	// ErrNoDrag reports a drag update without a matching BeginDrag.
	ErrNoDrag = errors.New("no drag in progress")
	// ErrDetectedOutput reports an attempt to remove an output the tool reported.
	ErrDetectedOutput = errors.New("detected outputs can only be disabled")
)

// Applier applies directives to the running compositor.
type Applier interface {
	Apply(ctx context.Context, directives []ipc.Directive) error
}

// Deps are the collaborators a controller drives.
type Deps struct {
	Source  state.DataSource
	Applier Applier
	Logger  *util.Logger
	Metrics *metrics.Collector
}

type dragState struct {
	name  string
	start state.Position
	last  state.Position
}

// Controller owns the layout session. Every method is safe for concurrent
// use; external tool calls run on a snapshot outside the session lock and
// only one may be in flight.
type Controller struct {
	source  state.DataSource
	applier Applier
	logger  *util.Logger
	metrics *metrics.Collector
	gate    *semaphore.Weighted
	history *activityLog

	mu       sync.Mutex
	settings config.Settings
	session  *state.Session
	viewport layout.Viewport
	drag     *dragState
	revision uint64
}

// New creates a controller with an empty session.
func New(settings config.Settings, deps Deps) *Controller {
	session, _ := state.NewSession()
	return &Controller{
		source:   deps.Source,
		applier:  deps.Applier,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		gate:     semaphore.NewWeighted(1),
		history:  newActivityLog(0),
		settings: settings,
		session:  session,
		viewport: layout.DefaultViewport(),
	}
}

func (c *Controller) acquire() error {
	if !c.gate.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

// Start queries the connected outputs and builds a fresh session. Saved
// rules for outputs that are not connected are merged in as virtual outputs
// when merge_saved_rules is set.
func (c *Controller) Start(ctx context.Context) (*state.Session, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	settings := c.Settings()
	session, err := c.query(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if settings.MergeSavedRules {
		c.mergeSaved(session, settings.MonitorsPath)
	}
	c.warnOverlaps(session)
	if names := session.Names(); len(names) > 0 {
		_ = session.Select(names[0])
	}

	c.mu.Lock()
	c.session = session
	c.drag = nil
	c.revision++
	clone := session.Clone()
	c.mu.Unlock()

	c.logger.Infof("session started with %d outputs", clone.Len())
	return clone, nil
}

// Reload re-queries the tool and replaces detected outputs with their live
// state. Virtual outputs and the selection are kept; unsaved edits to
// detected outputs are discarded.
func (c *Controller) Reload(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.gate.Release(1)

	settings := c.Settings()
	fresh, err := c.query(ctx, settings)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := false
	for _, o := range c.session.Outputs() {
		if !o.Virtual {
			continue
		}
		if _, detected := fresh.Get(o.Name); detected {
			continue
		}
		if o.Enabled && layout.WouldOverlapAny(o.LogicalRect(), state.Neighbors(fresh.Outputs(), o.Name)) {
			c.logger.Warnf("virtual output %s overlaps the detected layout, disabling it", o.Name)
			o.Enabled = false
		}
		if err := fresh.Add(o); err == nil {
			dirty = true
		}
	}
	c.warnOverlaps(fresh)
	selected := c.session.SelectedName()
	if err := fresh.Select(selected); err != nil {
		if names := fresh.Names(); len(names) > 0 {
			_ = fresh.Select(names[0])
		}
	}
	if dirty && c.session.Dirty() {
		fresh.MarkDirty()
	}
	c.session = fresh
	c.drag = nil
	c.revision++
	c.logger.Infof("session reloaded with %d outputs", fresh.Len())
	return nil
}

func (c *Controller) query(ctx context.Context, settings config.Settings) (*state.Session, error) {
	if c.source == nil {
		return nil, errors.New("no output source configured")
	}
	qctx, cancel := context.WithTimeout(ctx, settings.QueryTimeout)
	defer cancel()

	started := time.Now()
	outputs, err := c.source.QueryOutputs(qctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ipc.ErrQueryTimeout) {
		err = fmt.Errorf("%w: %w", ipc.ErrQueryTimeout, err)
	}
	c.history.record(newActivity(metrics.OpQuery, started, err))
	c.metrics.Record(metrics.OpQuery, err)
	if err != nil {
		return nil, err
	}
	session, err := state.NewSession(outputs...)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Controller) mergeSaved(session *state.Session, path string) {
	saved, problems, err := rules.LoadFile(path)
	if err != nil {
		c.logger.Warnf("saved rules unavailable: %v", err)
		return
	}
	for _, problem := range problems {
		c.logger.Warnf("%s: %v", path, problem)
	}
	for _, o := range saved {
		if _, detected := session.Get(o.Name); detected {
			continue
		}
		o.Virtual = true
		if layout.WouldOverlapAny(o.LogicalRect(), state.Neighbors(session.Outputs(), o.Name)) {
			c.logger.Warnf("saved output %s overlaps the current layout, adding it disabled", o.Name)
			o.Enabled = false
		}
		if err := session.Add(o); err != nil {
			c.logger.Warnf("skipping saved output %s: %v", o.Name, err)
			continue
		}
		c.logger.Debugf("merged saved output %s", o.Name)
	}
}

func (c *Controller) warnOverlaps(session *state.Session) {
	for _, pair := range state.OverlappingPairs(session.Outputs()) {
		c.logger.Warnf("detected outputs %s and %s overlap; preview and save are refused until one moves", pair[0], pair[1])
	}
}

// overlapError reports the first pair of enabled outputs that overlap.
func overlapError(outputs []state.Output) error {
	pairs := state.OverlappingPairs(outputs)
	if len(pairs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s and %s", ErrOverlap, pairs[0][0], pairs[0][1])
}

// ApplySavedRules overlays the saved rule file onto the detected outputs of
// the session and returns how many outputs it changed. Outputs without a
// saved rule keep their state. Nothing changes when the result would overlap.
func (c *Controller) ApplySavedRules() (int, error) {
	path := c.Settings().MonitorsPath
	saved, problems, err := rules.LoadFile(path)
	if err != nil {
		return 0, err
	}
	for _, problem := range problems {
		c.logger.Warnf("%s: %v", path, problem)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag != nil {
		return 0, fmt.Errorf("%w: dragging %s", ErrBusy, c.drag.name)
	}
	next := c.session.Clone()
	applied := 0
	for _, r := range saved {
		o, ok := next.Get(r.Name)
		if !ok || o.Virtual {
			continue
		}
		o.Mode.Width = r.Mode.Width
		o.Mode.Height = r.Mode.Height
		o.ModeUnknown = false
		if err := o.SetRefresh(r.Mode.Refresh); err != nil {
			return 0, err
		}
		if !o.ModesKnown() {
			o.CustomMode = r.CustomMode
		}
		o.Scale = r.Scale
		o.Transform = r.Transform
		o.Position = r.Position
		o.Enabled = r.Enabled
		o.Extra = append([]state.Field(nil), r.Extra...)
		if err := next.Put(o); err != nil {
			return 0, err
		}
		applied++
	}
	if pairs := state.OverlappingPairs(next.Outputs()); len(pairs) > 0 {
		return 0, fmt.Errorf("%w: %s and %s", ErrOverlap, pairs[0][0], pairs[0][1])
	}
	if applied > 0 {
		next.MarkDirty()
		c.session = next
		c.revision++
	}
	c.logger.Infof("applied %d saved rules from %s", applied, path)
	return applied, nil
}

// Settings returns the active settings.
func (c *Controller) Settings() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings swaps the settings used by later operations.
func (c *Controller) UpdateSettings(settings config.Settings) {
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	c.logger.Infof("settings updated")
}

// Session returns a copy of the current session.
func (c *Controller) Session() *state.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Outputs returns copies of all outputs ordered by name.
func (c *Controller) Outputs() []state.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Outputs()
}

// Output returns a copy of the named output.
func (c *Controller) Output(name string) (state.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Get(name)
}

// Select changes the selected output. An empty name clears the selection.
func (c *Controller) Select(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Select(name)
}

// Selected returns the selected output, if any.
func (c *Controller) Selected() (state.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Selected()
}

// Dirty reports whether the session has unsaved changes.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Dirty()
}

func (c *Controller) Viewport() layout.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *Controller) SetViewport(v layout.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
}

// FitViewport zooms the canvas so every enabled output fits in bounds.
func (c *Controller) FitViewport(bounds layout.Size, margin float64) layout.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	enabled := c.session.Enabled()
	rects := make([]layout.Rect, 0, len(enabled))
	for _, o := range enabled {
		rects = append(rects, o.LogicalRect())
	}
	c.viewport = layout.FitViewport(bounds, rects, margin)
	return c.viewport
}

// CanvasRects returns the canvas rectangle of every enabled output.
func (c *Controller) CanvasRects() map[string]layout.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	rects := make(map[string]layout.Rect)
	for _, o := range c.session.Enabled() {
		rects[o.Name] = c.viewport.Rect(o.LogicalRect())
	}
	return rects
}

// History returns recent previews, saves and queries, oldest first.
func (c *Controller) History() []Activity {
	return c.history.snapshot()
}

// Preview applies the current layout live without persisting it. The session
// is never modified, whatever the outcome. A layout with overlapping enabled
// outputs is refused with ErrOverlap and nothing is applied.
func (c *Controller) Preview(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.gate.Release(1)

	c.mu.Lock()
	snapshot := c.session.Clone()
	settings := c.settings
	c.mu.Unlock()

	outputs := snapshot.Outputs()
	if err := overlapError(outputs); err != nil {
		c.metrics.RecordRejected(metrics.OpPreview)
		c.logger.Warnf("preview refused: %v", err)
		return err
	}
	directives := ipc.PlanApply(outputs, settings.NormalizeOrigin)
	commands := make([][]string, len(directives))
	for i, d := range directives {
		commands[i] = d
	}

	if c.applier == nil {
		return fmt.Errorf("%w: no applier configured", ipc.ErrPreviewApplyFailed)
	}
	pctx, cancel := context.WithTimeout(ctx, settings.PreviewTimeout)
	defer cancel()
	started := time.Now()
	err := c.applier.Apply(pctx, directives)
	if err != nil && !errors.Is(err, ipc.ErrPreviewApplyFailed) {
		err = fmt.Errorf("%w: %w", ipc.ErrPreviewApplyFailed, err)
	}

	entry := newActivity(metrics.OpPreview, started, err)
	entry.Commands = commands
	c.history.record(entry)
	c.metrics.Record(metrics.OpPreview, err)
	if err != nil {
		c.logger.Warnf("preview failed: %v", err)
		return err
	}
	c.logger.Infof("preview applied to %d outputs", len(directives))
	return nil
}

// Save writes the rule block for the current layout and, when configured,
// makes sure the compositor config sources it. The dirty flag is cleared
// only when every step succeeds and no edit happened meanwhile. A layout with
// overlapping enabled outputs is refused with ErrOverlap before any write.
func (c *Controller) Save(ctx context.Context) (rules.Result, error) {
	if err := ctx.Err(); err != nil {
		return rules.Result{}, err
	}
	c.mu.Lock()
	outputs := c.session.Outputs()
	settings := c.settings
	rev := c.revision
	c.mu.Unlock()

	if err := overlapError(outputs); err != nil {
		c.metrics.RecordRejected(metrics.OpSave)
		c.logger.Warnf("save refused: %v", err)
		return rules.Result{}, err
	}
	if settings.NormalizeOrigin {
		state.NormalizeOrigin(outputs)
	}
	started := time.Now()
	res, err := rules.WriteConfig(outputs, settings.MonitorsPath)
	c.recordSave(metrics.OpSave, settings.MonitorsPath, started, err)
	if err != nil {
		c.logger.Errorf("save failed: %v", err)
		return res, fmt.Errorf("save layout: %w", err)
	}
	if res.Changed {
		c.logger.Infof("wrote %d rules to %s", res.Rules, res.Path)
		c.logger.Debugf("rule file diff:\n%s", res.Diff)
	} else {
		c.logger.Infof("%s already up to date", res.Path)
	}

	if settings.AutoAppendSource {
		started := time.Now()
		added, err := rules.EnsureSourceInclude(settings.ConfigPath, settings.MonitorsPath)
		c.recordSave(metrics.OpInclude, settings.ConfigPath, started, err)
		if err != nil {
			c.logger.Errorf("source include failed: %v", err)
			return res, fmt.Errorf("include %s in %s: %w", settings.MonitorsPath, settings.ConfigPath, err)
		}
		if added {
			c.logger.Infof("added source=%s to %s", settings.MonitorsPath, settings.ConfigPath)
		}
	}

	c.mu.Lock()
	if c.revision == rev {
		c.session.ClearDirty()
	}
	c.mu.Unlock()
	return res, nil
}

func (c *Controller) recordSave(op, path string, started time.Time, err error) {
	entry := newActivity(op, started, err)
	entry.Path = path
	c.history.record(entry)
	c.metrics.Record(op, err)
}

// BeginDrag starts moving an enabled output.
func (c *Controller) BeginDrag(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag != nil {
		return fmt.Errorf("%w: dragging %s", ErrBusy, c.drag.name)
	}
	o, ok := c.session.Get(name)
	if !ok {
		return fmt.Errorf("%w %q", state.ErrUnknownOutput, name)
	}
	if !o.Enabled {
		return &state.ValueError{Field: "drag", Value: name + " is disabled", Err: state.ErrInvalidValue}
	}
	c.drag = &dragState{name: name, start: o.Position, last: o.Position}
	_ = c.session.Select(name)
	c.logger.Debugf("drag started for %s at %d,%d", name, o.Position.X, o.Position.Y)
	return nil
}

// UpdateDrag moves the dragged output towards canvasPoint, the candidate
// top-left corner in canvas units. The point is snapped to neighbor edges
// and centers, then pulled back along the movement until it no longer
// overlaps. When no clear position exists the previous one is kept.
func (c *Controller) UpdateDrag(canvasPoint layout.Point) (state.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return state.Position{}, ErrNoDrag
	}
	o, ok := c.session.Get(c.drag.name)
	if !ok {
		c.drag = nil
		return state.Position{}, fmt.Errorf("%w: dragged output vanished", ErrNoDrag)
	}

	w, h := o.LogicalSize()
	size := layout.Size{Width: float64(w), Height: float64(h)}
	others := state.Neighbors(c.session.Outputs(), o.Name)
	threshold := c.viewport.LogicalDistance(c.settings.SnapThresholdPx)
	candidate := layout.Snap(size, c.viewport.ToLogical(canvasPoint), others, threshold)

	last := layout.Point{X: float64(c.drag.last.X), Y: float64(c.drag.last.Y)}
	resolved, ok := layout.ResolveOverlap(size, last, candidate, others)
	if !ok {
		c.metrics.RecordRejected(metrics.OpDrag)
		return c.drag.last, nil
	}
	pos := state.Position{X: int(math.Round(resolved.X)), Y: int(math.Round(resolved.Y))}
	if pos == c.drag.last {
		return pos, nil
	}
	o.SetPosition(pos.X, pos.Y)
	if err := c.session.Put(o); err != nil {
		return c.drag.last, err
	}
	c.drag.last = pos
	c.session.MarkDirty()
	c.revision++
	c.logger.Tracef("drag %s to %d,%d", o.Name, pos.X, pos.Y)
	return pos, nil
}

// EndDrag finishes the drag and returns the final position.
func (c *Controller) EndDrag() (state.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return state.Position{}, ErrNoDrag
	}
	d := c.drag
	c.drag = nil
	if d.last != d.start {
		c.metrics.RecordSuccess(metrics.OpDrag)
		c.logger.Infof("moved %s to %d,%d", d.name, d.last.X, d.last.Y)
	}
	return d.last, nil
}

// CancelDrag returns the dragged output to where the drag started.
func (c *Controller) CancelDrag() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return ErrNoDrag
	}
	d := c.drag
	c.drag = nil
	o, ok := c.session.Get(d.name)
	if !ok || o.Position == d.start {
		return nil
	}
	o.Position = d.start
	if err := c.session.Put(o); err != nil {
		return err
	}
	c.revision++
	return nil
}

// edit applies mutate to a copy of the named output and stores it when valid.
// Geometry edits that would overlap an enabled neighbor are refused; the
// session keeps the previous value.
func (c *Controller) edit(name string, geometry bool, mutate func(*state.Output) error) (state.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.session.Get(name)
	if !ok {
		return state.Output{}, fmt.Errorf("%w %q", state.ErrUnknownOutput, name)
	}
	if geometry && c.drag != nil && c.drag.name == name {
		return state.Output{}, fmt.Errorf("%w: %s is being dragged", ErrBusy, name)
	}
	if err := mutate(&o); err != nil {
		c.metrics.RecordRejected(metrics.OpEdit)
		c.logger.Warnf("rejected edit of %s: %v", name, err)
		return state.Output{}, err
	}
	if geometry && o.Enabled {
		rect := o.LogicalRect()
		for _, n := range state.Neighbors(c.session.Outputs(), name) {
			if layout.Overlaps(rect, n.Rect) {
				c.metrics.RecordRejected(metrics.OpEdit)
				c.logger.Warnf("rejected edit of %s: would overlap %s", name, n.Name)
				return state.Output{}, fmt.Errorf("%w: %s and %s", ErrOverlap, name, n.Name)
			}
		}
	}
	if err := c.session.Put(o); err != nil {
		return state.Output{}, err
	}
	c.session.MarkDirty()
	c.revision++
	c.metrics.RecordSuccess(metrics.OpEdit)
	return o, nil
}

// SetResolution switches the output to a listed (or, without a mode list,
// custom) resolution.
func (c *Controller) SetResolution(name string, width, height int) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error { return o.SetResolution(width, height) })
}

// SetMode selects an entry of the output's mode list.
func (c *Controller) SetMode(name string, index int) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error { return o.SetMode(index) })
}

// SetRefresh changes the refresh rate in hertz.
func (c *Controller) SetRefresh(name string, hz float64) (state.Output, error) {
	return c.edit(name, false, func(o *state.Output) error { return o.SetRefreshHz(hz) })
}

// SetScale changes the scale factor.
func (c *Controller) SetScale(name string, factor float64) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error { return o.SetScaleFactor(factor) })
}

// StepScale changes the scale in 0.05 steps.
func (c *Controller) StepScale(name string, steps int) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error {
		o.StepScale(steps)
		return nil
	})
}

// SetRotation changes the transform.
func (c *Controller) SetRotation(name string, degrees int, flipped bool) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error { return o.SetRotation(degrees, flipped) })
}

// SetPosition moves the output to x, y.
func (c *Controller) SetPosition(name string, x, y int) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error {
		o.SetPosition(x, y)
		return nil
	})
}

// Nudge moves the output by dx, dy.
func (c *Controller) Nudge(name string, dx, dy int) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error {
		o.Nudge(dx, dy)
		return nil
	})
}

// SetEnabled turns the output on or off.
func (c *Controller) SetEnabled(name string, enabled bool) (state.Output, error) {
	return c.edit(name, true, func(o *state.Output) error {
		o.Enabled = enabled
		return nil
	})
}

// AddVirtualOutput adds a planned output that is not connected. It is placed
// right of the rightmost enabled output.
func (c *Controller) AddVirtualOutput(name string, mode state.Mode, enabled bool) (state.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	x := 0
	for _, o := range c.session.Enabled() {
		if right := int(math.Ceil(o.LogicalRect().Right())); right > x {
			x = right
		}
	}
	o := state.Output{
		Name:       name,
		Mode:       mode,
		CustomMode: true,
		Scale:      state.ScaleOne,
		Position:   state.Position{X: x},
		Enabled:    enabled,
		Virtual:    true,
	}
	if err := c.session.Add(o); err != nil {
		return state.Output{}, err
	}
	c.session.MarkDirty()
	c.revision++
	c.logger.Infof("added virtual output %s at %d,0", name, x)
	return o, nil
}

// RemoveOutput drops a virtual output from the session.
func (c *Controller) RemoveOutput(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.session.Get(name)
	if !ok {
		return fmt.Errorf("%w %q", state.ErrUnknownOutput, name)
	}
	if !o.Virtual {
		return fmt.Errorf("%w: %s", ErrDetectedOutput, name)
	}
	if c.drag != nil && c.drag.name == name {
		c.drag = nil
	}
	if err := c.session.Remove(name); err != nil {
		return err
	}
	c.session.MarkDirty()
	c.revision++
	return nil
}
