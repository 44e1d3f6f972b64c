package viewport

import "metroview/internal/geom"

// CenterOn smoothly scrolls so the container's visual center sits on the
// bounding-box center of pts, taken through the current scale.
func (c *Controller) CenterOn(pts []geom.Point) bool {
	box, ok := geom.Bounds(pts)
	if !ok {
		return false
	}
	target := box.Center().Mul(c.state.Scale).Sub(c.state.Container.Center())
	c.ScrollTo(target, true)
	return true
}
