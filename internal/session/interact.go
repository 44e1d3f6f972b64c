package session

import (
	"context"
	"strings"

	"metroview/internal/geom"
	"metroview/internal/popup"
	"metroview/internal/scene"
	"metroview/internal/viewport"
)

func (v *Viewer) ZoomIn(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.ZoomIn()
		return nil
	})
}

func (v *Viewer) ZoomOut(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.ZoomOut()
		return nil
	})
}

func (v *Viewer) ResetZoom(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.Reset()
		return nil
	})
}

// Wheel zooms around cursor, given relative to the container.
func (v *Viewer) Wheel(ctx context.Context, deltaY float64, cursor geom.Point) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.Wheel(deltaY, cursor)
		return nil
	})
}

func (v *Viewer) PointerDown(ctx context.Context, target viewport.Target, p geom.Point) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.StartDrag(target, p)
		return nil
	})
}

func (v *Viewer) PointerMove(ctx context.Context, p geom.Point) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.DragTo(p)
		return nil
	})
}

// PointerUp ends a pan. It is accepted before the diagram is ready.
func (v *Viewer) PointerUp(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		if v.view != nil {
			v.view.EndDrag()
		}
		return nil
	})
}

// Scroll applies a scroll the user made on the container directly.
func (v *Viewer) Scroll(ctx context.Context, p geom.Point) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.SetScroll(p)
		return nil
	})
}

func (v *Viewer) Resize(ctx context.Context, size geom.Size) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		v.view.SetContainer(size)
		return nil
	})
}

// Pick handles a click on the diagram. A station label or a circle with an
// id opens the selection popup; anything else dismisses it.
func (v *Viewer) Pick(ctx context.Context, p Pick) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		name, ok := v.pickedStation(p)
		if !ok {
			v.dismissPopup(popup.DismissOutside)
			return ErrNotStation
		}
		v.popup.Open(name, p.Pointer, v.view.Scroll())
		return nil
	})
}

func (v *Viewer) pickedStation(p Pick) (string, bool) {
	switch strings.ToLower(p.Element) {
	case "text", "tspan":
		name := strings.TrimSpace(p.Text)
		if name == "" {
			return "", false
		}
		if v.stations != nil {
			return name, v.stations.Contains(name)
		}
		_, ok := v.svg.Resolve(name)
		return name, ok
	case "circle":
		id := strings.TrimSpace(p.ID)
		return id, id != ""
	}
	return "", false
}

// LayoutPopup applies the measured popup size, flipping it to stay inside
// the container.
func (v *Viewer) LayoutPopup(ctx context.Context, size geom.Size) (Snapshot, error) {
	return v.do(ctx, true, func() error {
		if !v.popup.State().Open {
			return ErrNoPopup
		}
		v.popup.Layout(size, v.view.Scroll(), v.view.State().Container)
		return nil
	})
}

func (v *Viewer) CancelPopup(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		v.dismissPopup(popup.DismissCancel)
		return nil
	})
}

func (v *Viewer) UseAsStart(ctx context.Context) (Snapshot, error) {
	return v.confirm(ctx, scene.RoleStart)
}

func (v *Viewer) UseAsEnd(ctx context.Context) (Snapshot, error) {
	return v.confirm(ctx, scene.RoleEnd)
}

// confirm fills an input from the popup and searches once both inputs are
// set. A search started this way supersedes one still outstanding.
func (v *Viewer) confirm(ctx context.Context, role scene.Role) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		name, ok := v.popup.Confirm()
		if !ok {
			return ErrNoPopup
		}
		if role == scene.RoleStart {
			v.start = name
		} else {
			v.end = name
		}
		v.refreshHighlights()
		if v.start != "" && v.end != "" {
			v.search()
		}
		return nil
	})
}

// Diagram renders the current document, overlay and highlights included.
func (v *Viewer) Diagram(ctx context.Context) ([]byte, error) {
	var (
		out  []byte
		ferr error
	)
	err := v.loop.Do(ctx, func() {
		if v.svg == nil {
			ferr = ErrNotReady
			return
		}
		out, ferr = v.svg.Bytes()
	})
	if err != nil {
		return nil, err
	}
	return out, ferr
}
