// Package lines maps transit line names to display colours and summarizes
// a routed path for presentation.
package lines

import (
	"strings"

	"metroview/internal/routeclient"
)

const (
	FallbackColor = "#888"
	UnknownLine   = "未知线路"
)

var palette = map[string]string{
	"1号线":  "#F3D03E",
	"2号线":  "#00629B",
	"3号线":  "#ECA154",
	"4号线":  "#00843D",
	"5号线":  "#C5003E",
	"6号线":  "#80225F",
	"7号线":  "#97D700",
	"8号线":  "#008C95",
	"9号线":  "#71CC98",
	"10号线": "#5B7AB3",
	"11号线": "#F5A0B5",
	"12号线": "#C4A67E",
	"13号线": "#8DC21F",
	"14号线": "#82312E",
	"18号线": "#0047AB",
	"21号线": "#201747",
	"22号线": "#C19B6A",
	"APM":  "#00AED6",
	"广佛线":  "#F09432",
	"广清城际": "#00A1E9",
}

// Badges on these backgrounds need dark text.
var lightColors = map[string]bool{
	"#F3D03E": true,
	"#97D700": true,
	"#71CC98": true,
	"#F5A0B5": true,
	"#C4A67E": true,
	"#C19B6A": true,
}

// Normalize drops a direction suffix such as "(往嘉禾望岗)" and surrounding
// whitespace. Full-width parentheses are treated the same way.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, "(（"); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// Color returns the palette colour for a line. Bare numbers ("3") match
// their "号线" entry; anything else gets FallbackColor.
func Color(line string) string {
	n := Normalize(line)
	if n == "" {
		return FallbackColor
	}
	if c, ok := palette[n]; ok {
		return c
	}
	if c, ok := palette[strings.ToUpper(n)]; ok {
		return c
	}
	if c, ok := palette[n+"号线"]; ok {
		return c
	}
	return FallbackColor
}

func TextColor(background string) string {
	if lightColors[strings.ToUpper(background)] {
		return "#333"
	}
	return "white"
}

type Role string

const (
	RoleStart    Role = "start"
	RoleEnd      Role = "end"
	RoleTransfer Role = "transfer"
	RoleVia      Role = "via"
)

type Segment struct {
	Line      string `json:"line"`
	Color     string `json:"color"`
	TextColor string `json:"text_color"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Stations  int    `json:"stations"`
}

type Stop struct {
	Station string `json:"station"`
	Role    Role   `json:"role"`
}

type Summary struct {
	Stations  int       `json:"stations"`
	Transfers int       `json:"transfers"`
	Segments  []Segment `json:"segments"`
	Stops     []Stop    `json:"stops"`
}

// TransferStations lists the stations where one segment ends and the next
// begins, in travel order.
func TransferStations(segments []routeclient.Segment) []string {
	if len(segments) < 2 {
		return nil
	}
	out := make([]string, 0, len(segments)-1)
	for _, s := range segments[:len(segments)-1] {
		if s.End == "" {
			continue
		}
		out = append(out, s.End)
	}
	return out
}

// Summarize builds the presentation summary of a route. Stations counts the
// hops (len(route)-1).
func Summarize(res routeclient.Result) Summary {
	sum := Summary{Transfers: res.Transfers}
	if len(res.Route) > 0 {
		sum.Stations = len(res.Route) - 1
	}

	for _, s := range res.Segments {
		line := strings.TrimSpace(s.Line)
		color := Color(line)
		if line == "" {
			line = UnknownLine
		}
		hops := len(s.Stations) - 1
		if hops < 0 {
			hops = 0
		}
		sum.Segments = append(sum.Segments, Segment{
			Line:      line,
			Color:     color,
			TextColor: TextColor(color),
			Start:     s.Start,
			End:       s.End,
			Stations:  hops,
		})
	}

	transfer := make(map[string]bool)
	for _, name := range TransferStations(res.Segments) {
		transfer[name] = true
	}

	last := len(res.Route) - 1
	for i, name := range res.Route {
		role := RoleVia
		switch {
		case i == 0:
			role = RoleStart
		case i == last:
			role = RoleEnd
		case transfer[name]:
			role = RoleTransfer
		}
		sum.Stops = append(sum.Stops, Stop{Station: name, Role: role})
	}
	return sum
}
