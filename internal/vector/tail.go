/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "math"

// TailOptions controls the generated tail geometry, in canvas pixels.
// Output points are rounded to 3 decimals.
type TailOptions struct {
	// BaseWidth is the width where the tail attaches to the balloon edge.
	BaseWidth float64
	// Length is the tail length measured from the base center towards the speaker anchor.
	// If the anchor is farther than Length, the tip will stop at Length; if nearer and
	// outside direction would point inside the balloon, the tip will extend outward by Length.
	Length float64
	// Curved produces quadratic sides instead of a triangle.
	Curved bool
}

// TailGeometry describes the generated tail points and its path.
type TailGeometry struct {
	BaseLeft   Pt
	BaseRight  Pt
	BaseCenter Pt
	Tip        Pt
	Angle      float64 // radians, direction from balloon center to anchor
	Side       string  // approximate side: left/right/top/bottom
	Path       Path
}

// ComputeBalloonTailEllipse creates a tail for an elliptical balloon defined by rect.
// The ellipse is inscribed in rect (rx = rect.W/2, ry = rect.H/2). The tail auto-orients
// towards the speaker anchor and exits at the ellipse point where the ray from center to
// anchor meets the boundary.
func ComputeBalloonTailEllipse(balloon Rect, anchor Pt, opts TailOptions) TailGeometry {
	if opts.BaseWidth <= 0 {
		opts.BaseWidth = math.Max(8, math.Min(balloon.W, balloon.H)*0.1)
	}
	if opts.Length <= 0 {
		opts.Length = math.Max(16, math.Min(balloon.W, balloon.H)*0.2)
	}

	cx, cy := balloon.X+balloon.W/2, balloon.Y+balloon.H/2
	rx, ry := balloon.W/2, balloon.H/2
	vx, vy := anchor.X-cx, anchor.Y-cy

	// If anchor coincides with center, pick upward direction deterministically.
	if vx == 0 && vy == 0 {
		vy = -1
	}

	// Direction unit from center to anchor
	mag := math.Hypot(vx, vy)
	ux, uy := vx/mag, vy/mag

	// Distance from center to ellipse boundary along direction u.
	// d = 1 / sqrt((ux^2/rx^2) + (uy^2/ry^2))
	var d float64
	if rx > 0 && ry > 0 {
		d = 1 / math.Sqrt((ux*ux)/(rx*rx)+(uy*uy)/(ry*ry))
	}

	bc := Pt{X: FloatRound(cx+ux*d, 3), Y: FloatRound(cy+uy*d, 3)}

	// Perpendicular direction to form the base chord
	px, py := -uy, ux
	halfW := opts.BaseWidth / 2
	bl := Pt{X: FloatRound(bc.X+px*halfW, 3), Y: FloatRound(bc.Y+py*halfW, 3)}
	br := Pt{X: FloatRound(bc.X-px*halfW, 3), Y: FloatRound(bc.Y-py*halfW, 3)}

	// Decide tip placement.
	// If anchor lies in outward direction (from base along u) and is closer than Length, use anchor.
	// Otherwise, place the tip at fixed length along outward direction.
	// Determine if anchor is outside relative to the base direction by dot((anchor-bc), u).
	dot := (anchor.X-bc.X)*ux + (anchor.Y-bc.Y)*uy
	var tip Pt
	if dot > 0 {
		// Candidate tip towards anchor, but clamp by Length.
		distToAnchor := math.Hypot(anchor.X-bc.X, anchor.Y-bc.Y)
		if distToAnchor <= opts.Length {
			tip = Pt{X: FloatRound(anchor.X, 3), Y: FloatRound(anchor.Y, 3)}
		} else {
			tip = Pt{X: FloatRound(bc.X+ux*opts.Length, 3), Y: FloatRound(bc.Y+uy*opts.Length, 3)}
		}
	} else {
		// Anchor is inside or behind; extend outward by fixed length.
		tip = Pt{X: FloatRound(bc.X+ux*opts.Length, 3), Y: FloatRound(bc.Y+uy*opts.Length, 3)}
	}

	angle := math.Atan2(uy, ux)
	side := classifySide(ux, uy)

	var path Path
	if opts.Curved {
		off := opts.Length * 0.35
		cx1 := FloatRound(bc.X+ux*off+px*(halfW*0.4), 3)
		cy1 := FloatRound(bc.Y+uy*off+py*(halfW*0.4), 3)
		cx2 := FloatRound(bc.X+ux*off-px*(halfW*0.4), 3)
		cy2 := FloatRound(bc.Y+uy*off-py*(halfW*0.4), 3)

		path.MoveTo(bl.X, bl.Y)
		path.QuadTo(cx1, cy1, tip.X, tip.Y)
		path.LineTo(br.X, br.Y)
		path.QuadTo(cx2, cy2, bl.X, bl.Y)
		path.Close()
	} else {
		path.MoveTo(bl.X, bl.Y)
		path.LineTo(tip.X, tip.Y)
		path.LineTo(br.X, br.Y)
		path.Close()
	}

	return TailGeometry{
		BaseLeft:   bl,
		BaseRight:  br,
		BaseCenter: bc,
		Tip:        tip,
		Angle:      angle,
		Side:       side,
		Path:       path,
	}
}

func classifySide(ux, uy float64) string {
	ax, ay := math.Abs(ux), math.Abs(uy)
	if ax >= ay {
		if ux >= 0 {
			return "right"
		}
		return "left"
	}
	if uy >= 0 {
		return "bottom"
	}
	return "top"
}

// DefaultAnchor is where a bubble points when no speaker is known: below the
// bubble, left of centre.
func DefaultAnchor(balloon Rect) Pt {
	return Pt{X: balloon.X + balloon.W*0.25, Y: balloon.Y + balloon.H + math.Max(20, balloon.H*0.5)}
}

// BubbleTail is the tail polygon drawn under speech and shout bubbles.
func BubbleTail(balloon Rect) TailGeometry {
	m := math.Min(balloon.W, balloon.H)
	return ComputeBalloonTailEllipse(balloon, DefaultAnchor(balloon), TailOptions{
		BaseWidth: math.Max(12, m*0.2),
		Length:    math.Max(16, m*0.35),
	})
}

// Circle is a centre and radius.
type Circle struct {
	C Pt
	R float64
}

// ThoughtTrail returns the two shrinking circles trailing a thought bubble
// towards its default anchor, the larger one first.
func ThoughtTrail(balloon Rect) [2]Circle {
	geo := ComputeBalloonTailEllipse(balloon, DefaultAnchor(balloon), TailOptions{BaseWidth: 1, Length: 1})
	ux, uy := math.Cos(geo.Angle), math.Sin(geo.Angle)
	r1 := math.Max(4, math.Min(balloon.W, balloon.H)*0.08)
	r2 := r1 * 0.55
	d1 := r1 * 1.6
	d2 := d1 + r1 + r2*2.2
	bc := geo.BaseCenter
	return [2]Circle{
		{C: Pt{X: FloatRound(bc.X+ux*d1, 3), Y: FloatRound(bc.Y+uy*d1, 3)}, R: r1},
		{C: Pt{X: FloatRound(bc.X+ux*d2, 3), Y: FloatRound(bc.Y+uy*d2, 3)}, R: r2},
	}
}
